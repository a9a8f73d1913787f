package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/fakeyudi/scopecomms/internal/logging"
	"github.com/fakeyudi/scopecomms/ppl"
)

const (
	vertexShaderItem   = "Vertex Shader"
	fragmentShaderItem = "Fragment Shader"
	quitMarks          = 40
)

const defaultVertexShader = `attribute highp vec3 inVertex;
attribute mediump vec3 inNormal;
uniform highp mat4 MVPMatrix;
varying mediump vec3 vNormal;
void main() {
	gl_Position = MVPMatrix * vec4(inVertex, 1.0);
	vNormal = inNormal;
}
`

const defaultFragmentShader = `uniform mediump float SpecularExponent;
uniform mediump float Metallicity;
uniform mediump float Reflectivity;
uniform mediump vec3 Albedo;
varying mediump vec3 vNormal;
void main() {
	gl_FragColor = vec4(Albedo * Reflectivity, 1.0);
}
`

type demoOptions struct {
	frames   int
	address  string
	interval time.Duration
	wait     time.Duration
}

var demoOpts = demoOptions{interval: 16 * time.Millisecond, wait: 200 * time.Millisecond}

var demoCmd = &cobra.Command{
	Use:   "demo",
	Short: "Run a host render loop that publishes tunables, counters and spans",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		opts := []ppl.Option{ppl.WithConfig(cfg)}
		if demoOpts.address != "" {
			opts = append(opts, ppl.WithAddress(demoOpts.address))
		}
		return runDemo(ctx, cmd.OutOrStdout(), demoOpts, opts...)
	},
}

// uniforms are the host values the library exposes for tuning.
type uniforms struct {
	vertexShader     []byte
	fragmentShader   []byte
	specularExponent float32
	metallicity      float32
	reflectivity     float32
	albedo           [3]float32
}

func newUniforms() *uniforms {
	return &uniforms{
		vertexShader:     []byte(defaultVertexShader),
		fragmentShader:   []byte(defaultFragmentShader),
		specularExponent: 5,
		metallicity:      1,
		reflectivity:     0.1,
		albedo:           [3]float32{1, 0.77, 0.33},
	}
}

// library lists the items in the order their indices are assigned.
func (u *uniforms) library() []ppl.LibraryItem {
	return []ppl.LibraryItem{
		ppl.String(vertexShaderItem, u.vertexShader),
		ppl.String(fragmentShaderItem, u.fragmentShader),
		ppl.Float("Specular Exponent", u.specularExponent, 1, 1000),
		ppl.Float("Metallicity", u.metallicity, 0, 1),
		ppl.Float("Reflectivity", u.reflectivity, 0, 1),
		ppl.Float("Albedo R", u.albedo[0], 0, 1),
		ppl.Float("Albedo G", u.albedo[1], 0, 1),
		ppl.Float("Albedo B", u.albedo[2], 0, 1),
	}
}

// apply copies one remote edit into the uniforms. It reports whether item
// and data were recognised.
func (u *uniforms) apply(item uint32, data []byte) bool {
	switch item {
	case 0:
		u.vertexShader = append([]byte(nil), data...)
		return true
	case 1:
		u.fragmentShader = append([]byte(nil), data...)
		return true
	}
	v, err := ppl.ParseFloatValue(data)
	if err != nil {
		return false
	}
	switch item {
	case 2:
		u.specularExponent = v.Current
	case 3:
		u.metallicity = v.Current
	case 4:
		u.reflectivity = v.Current
	case 5, 6, 7:
		u.albedo[item-5] = v.Current
	default:
		return false
	}
	return true
}

type demoResult struct {
	frames   uint32
	edits    int
	degraded int
}

// runDemo drives the render loop until o.frames frames ran (0 means until
// ctx is done).
func runDemo(ctx context.Context, out io.Writer, o demoOptions, opts ...ppl.Option) error {
	logger := logging.Named("demo")
	s := ppl.Initialise("Demo", opts...)
	if s == nil {
		return fmt.Errorf("demo: could not start a session")
	}
	defer ppl.Shutdown(s)

	// Sent before any server is known, so it only arrives if the connection
	// was already up.
	ppl.SendMark(s, "lost")
	if ok := ppl.WaitForConnection([]*ppl.Session{s}, o.wait); !ok[0] {
		logger.Info("no perf server yet, running unconnected")
	}

	u := newUniforms()
	if !ppl.LibraryCreate(s, u.library()) {
		logger.Warn("library not published")
	}
	if !ppl.CountersCreate(s, []ppl.CounterDef{{Name: "Frames"}, {Name: "Frames10"}}) {
		logger.Warn("counters not published")
	}

	var tick <-chan time.Time
	if o.interval > 0 {
		t := time.NewTicker(o.interval)
		defer t.Stop()
		tick = t.C
	}

	var res demoResult
	wasDegraded := false
	for o.frames == 0 || int(res.frames) < o.frames {
		if tick != nil {
			select {
			case <-ctx.Done():
				return finishDemo(s, out, res)
			case <-tick:
			}
		} else if ctx.Err() != nil {
			break
		}

		n, failed := renderFrame(s, u, res.frames)
		res.edits += n
		if failed {
			res.degraded++
		}
		if failed != wasDegraded {
			if failed {
				logger.Warn("communication error", "frame", res.frames)
			} else {
				logger.Info("communication restored", "frame", res.frames)
			}
			wasDegraded = failed
		}
		res.frames++
	}
	return finishDemo(s, out, res)
}

// renderFrame runs one frame and returns how many edits it applied and
// whether any call to the session failed.
func renderFrame(s *ppl.Session, u *uniforms, frame uint32) (edits int, failed bool) {
	failed = !ppl.SendProcessingBegin(s, "frame", frame) || failed

	failed = !ppl.SendProcessingBegin(s, "dirty", frame) || failed
	for {
		item, data, ok := ppl.LibraryDirtyGetFirst(s)
		if !ok {
			break
		}
		if u.apply(item, data) {
			edits++
		}
	}
	failed = !ppl.SendProcessingEnd(s) || failed

	failed = !ppl.SendProcessingBegin(s, "draw", frame) || failed
	failed = !ppl.SendProcessingEnd(s) || failed
	end := ppl.ProcessingScoped(s, "UIRenderer", frame)
	failed = !end() || failed

	failed = !ppl.SendProcessingEnd(s) || failed

	if frame%100 == 0 {
		failed = !ppl.SendMark(s, fmt.Sprintf("frame %d", frame)) || failed
	}
	failed = !ppl.CountersUpdate(s, []uint32{frame, frame / 10}) || failed
	failed = !ppl.SendFlush(s) || failed
	return edits, failed
}

func finishDemo(s *ppl.Session, out io.Writer, res demoResult) error {
	end := ppl.ProcessingScoped(s, "quit", res.frames)
	for i := range quitMarks {
		ppl.SendMark(s, fmt.Sprintf("quit %d", i))
	}
	end()
	ppl.SendFlush(s)
	fmt.Fprintf(out, "Ran %d frames, applied %d edits, %d frames with communication errors.\n",
		res.frames, res.edits, res.degraded)
	return nil
}

func init() {
	demoCmd.Flags().IntVar(&demoOpts.frames, "frames", 0, "stop after this many frames (0 runs until interrupted)")
	demoCmd.Flags().StringVar(&demoOpts.address, "address", "", "perf server address (overrides config)")
	demoCmd.Flags().DurationVar(&demoOpts.interval, "interval", demoOpts.interval, "time between frames")
	demoCmd.Flags().DurationVar(&demoOpts.wait, "wait", demoOpts.wait, "how long to wait for the server before the first frame")
	rootCmd.AddCommand(demoCmd)
}

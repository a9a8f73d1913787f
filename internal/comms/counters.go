package comms

// CounterDef names one counter slot. Its position in the slice passed to
// CountersCreate is its index in every CountersUpdate.
type CounterDef struct {
	Name string
}

type counters struct {
	names   []string
	created bool
	seq     uint64
}

func (c *counters) create(defs []CounterDef) {
	c.names = make([]string, len(defs))
	for i, d := range defs {
		c.names[i] = d.Name
	}
	c.created = true
}

func (c *counters) check(readings []uint32) error {
	if !c.created {
		return ErrNotCreated
	}
	if len(readings) != len(c.names) {
		return &CountMismatchError{Want: len(c.names), Got: len(readings)}
	}
	return nil
}

// next returns the sequence number for the next snapshot. Snapshots dropped
// while disconnected still consume one, so receivers can see the gap.
func (c *counters) next() uint64 {
	c.seq++
	return c.seq
}

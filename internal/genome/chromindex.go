// Package genome provides chromosome naming and region window math shared by
// the rest of the pipeline.
package genome

// ChromIndex maps chromosome names to dense integer ids and back. Ids are
// assigned in first-seen order and never reused. The index is built once while
// loading inputs and is read-only during region processing, so it carries no
// locking.
type ChromIndex struct {
	nameToID map[string]int
	idToName []string
}

// NewChromIndex returns an empty index.
func NewChromIndex() *ChromIndex {
	return &ChromIndex{nameToID: make(map[string]int)}
}

// GetOrCreateID returns the id for name, assigning the next id if the name has
// not been seen before.
func (c *ChromIndex) GetOrCreateID(name string) int {
	if id, ok := c.nameToID[name]; ok {
		return id
	}
	id := len(c.idToName)
	c.nameToID[name] = id
	c.idToName = append(c.idToName, name)
	return id
}

// FindID returns the id for name, or -1 if the name is unknown.
func (c *ChromIndex) FindID(name string) int {
	if id, ok := c.nameToID[name]; ok {
		return id
	}
	return -1
}

// Name returns the name for id, or "" if the id is out of range.
func (c *ChromIndex) Name(id int) string {
	if id < 0 || id >= len(c.idToName) {
		return ""
	}
	return c.idToName[id]
}

// Len returns the number of chromosomes in the index.
func (c *ChromIndex) Len() int {
	return len(c.idToName)
}

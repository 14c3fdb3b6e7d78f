package satellite

import "fmt"

// Identity is the immutable (name, group, interface) triple assigned to a
// satellite at construction. name must be unique within group.
type Identity struct {
	Name      string
	Group     string
	Interface string
}

func (id Identity) String() string {
	return fmt.Sprintf("%s.%s", id.Group, id.Name)
}

package provider

import "fmt"

// Action is the kind of change applied to a record.
type Action string

const (
	ActionCreate Action = "create"
	ActionUpdate Action = "update"
	ActionDelete Action = "delete"
)

// Change is a single operation against a zone.
type Change struct {
	Action Action
	Zone   Zone

	// Current is the record as it exists at the provider. Set for update and delete.
	Current Record

	// Desired is the record to write. Set for create and update.
	Desired Record

	// Marker is true when the change targets an ownership marker.
	Marker bool
}

// Create returns a create change.
func Create(zone Zone, desired Record) Change {
	return Change{Action: ActionCreate, Zone: zone, Desired: desired}
}

// Update returns an update change.
func Update(zone Zone, current, desired Record) Change {
	return Change{Action: ActionUpdate, Zone: zone, Current: current, Desired: desired}
}

// Delete returns a delete change.
func Delete(zone Zone, current Record) Change {
	return Change{Action: ActionDelete, Zone: zone, Current: current}
}

// Record returns the record the change is about: Desired for create and
// update, Current for delete.
func (c Change) Record() Record {
	if c.Action == ActionDelete {
		return c.Current
	}
	return c.Desired
}

// Name returns the owner name of the affected record.
func (c Change) Name() string {
	return c.Record().Name
}

func (c Change) String() string {
	kind := "record"
	if c.Marker {
		kind = "marker"
	}
	switch c.Action {
	case ActionUpdate:
		return fmt.Sprintf("%s %s %s (%s) -> (%s) in %s", c.Action, kind, c.Current.Key(), c.Current, c.Desired, c.Zone.Name)
	default:
		return fmt.Sprintf("%s %s %s in %s", c.Action, kind, c.Record(), c.Zone.Name)
	}
}

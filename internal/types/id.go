// README: Identifier, role and coordinate value types shared by modules.
package types

type ID string

func (id ID) String() string { return string(id) }

// Role is the authenticated caller role, taken from the identity token.
type Role string

const (
	RoleConsumer Role = "consumer"
	RoleChef     Role = "chef"
	RoleDelivery Role = "delivery"
)

func (r Role) Valid() bool {
	switch r {
	case RoleConsumer, RoleChef, RoleDelivery:
		return true
	}
	return false
}

type Point struct {
	Lat float64
	Lng float64
}

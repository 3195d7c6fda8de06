package models

type Role string

const (
	RoleAttendee  Role = "attendee"
	RoleOrganizer Role = "organizer"
)

func (r Role) Valid() bool {
	return r == RoleAttendee || r == RoleOrganizer
}

type User struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
	Role  Role   `json:"role"`
}

// IsOrganizer reports whether u may create and manage events. Every user,
// organizers included, may buy tickets.
func (u User) IsOrganizer() bool {
	return u.Role == RoleOrganizer
}

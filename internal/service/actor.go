package service

import (
	"retailpos/internal/model"

	"github.com/google/uuid"
)

// Actor is the authenticated caller of a core operation. Handlers build it
// from the JWT claims; services never look it up on their own.
type Actor struct {
	ID   uuid.UUID
	Role model.Role
}

func (a Actor) HasRole(roles ...model.Role) bool {
	for _, r := range roles {
		if a.Role == r {
			return true
		}
	}
	return false
}

// Privileged reports whether the actor may act on other operators' sessions.
func (a Actor) Privileged() bool {
	return a.HasRole(model.RoleAdministrador, model.RoleSupervisor)
}

var (
	cashOperators = []model.Role{model.RoleCajero, model.RoleSupervisor, model.RoleAdministrador}
	stockManagers = []model.Role{model.RoleAdministrador, model.RoleSupervisor}
	saleVoiders   = []model.Role{model.RoleAdministrador}
)

func authorize(a Actor, roles ...model.Role) error {
	if a.ID == uuid.Nil || !a.HasRole(roles...) {
		return ErrForbidden
	}
	return nil
}

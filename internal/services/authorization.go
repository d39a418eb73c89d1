package services

import (
	"fmt"

	"hawkinsfarm/internal/models"
)

// Operation names a guarded marketplace action.
type Operation string

const (
	OpPlaceOrder        Operation = "place_order"
	OpBuyerHistory      Operation = "buyer_history"
	OpFarmerIncoming    Operation = "farmer_incoming"
	OpManageProducts    Operation = "manage_products"
	OpUpdateOrderStatus Operation = "update_order_status"
)

// requiredRole lists the role each operation demands; an empty role means
// any authenticated identity.
var requiredRole = map[Operation]models.Role{
	OpPlaceOrder:        models.RoleBuyer,
	OpBuyerHistory:      "",
	OpFarmerIncoming:    models.RoleFarmer,
	OpManageProducts:    models.RoleFarmer,
	OpUpdateOrderStatus: models.RoleFarmer,
}

// Authorize is a pure predicate over the caller's identity.
func Authorize(identity models.Identity, op Operation) error {
	if !identity.Authenticated() {
		return models.ErrUnauthenticated
	}
	role, known := requiredRole[op]
	if !known {
		return fmt.Errorf("%w: unknown operation %q", models.ErrForbidden, op)
	}
	if role != "" && identity.Role != role {
		return fmt.Errorf("%w: %s requires role %s", models.ErrForbidden, op, role)
	}
	return nil
}

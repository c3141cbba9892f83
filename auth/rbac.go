package auth

import (
	"fmt"

	"github.com/casbin/casbin/v2"
	"github.com/casbin/casbin/v2/model"

	"github.com/anthrax3/OrigoDB"
)

// rbacModel is a minimal request-definition/policy-definition/role-definition
// model: a caller is allowed to perform a verb ("Command" or "Query") on a
// named resource (the Operation.Type) if some policy line grants it to the
// caller directly or to a role the caller holds.
const rbacModel = `
[request_definition]
r = caller, kind, typ

[policy_definition]
p = role, kind, typ

[role_definition]
g = _, _

[policy_effect]
e = some(where (p.eft == allow))

[matchers]
m = g(r.caller, p.role) && r.kind == p.kind && r.typ == p.typ
`

// RBACAuthorizer is an Authorizer backed by a casbin role-based policy
// enforcer, grounded on the same Enforcer/casbin.SyncedCachedEnforcer
// pairing used elsewhere in the example corpus for username/resource/verb
// decisions. It adapts that shape to Operation's Kind/Type decision surface.
type RBACAuthorizer struct {
	enforcer *casbin.SyncedCachedEnforcer
}

// NewRBACAuthorizer builds an enforcer from an in-memory model and the given
// policy adapter path (a CSV policy file, per casbin's file adapter). Pass
// "" for policyPath to start with no policies and add them via AddRole and
// AddPolicy.
func NewRBACAuthorizer(policyPath string) (*RBACAuthorizer, error) {
	m, err := model.NewModelFromString(rbacModel)
	if err != nil {
		return nil, fmt.Errorf("auth: build rbac model: %w", err)
	}

	var e *casbin.SyncedCachedEnforcer
	if policyPath == "" {
		e, err = casbin.NewSyncedCachedEnforcer(m)
	} else {
		e, err = casbin.NewSyncedCachedEnforcer(m, policyPath)
	}
	if err != nil {
		return nil, fmt.Errorf("auth: build rbac enforcer: %w", err)
	}

	return &RBACAuthorizer{enforcer: e}, nil
}

// AddRole grants role to caller, so every policy held by role also applies
// to caller.
func (a *RBACAuthorizer) AddRole(caller, role string) error {
	if _, err := a.enforcer.AddRoleForUser(caller, role); err != nil {
		return fmt.Errorf("auth: add role: %w", err)
	}
	a.enforcer.InvalidateCache()
	return nil
}

// AddPolicy grants role permission to invoke Operations of the given kind
// and type. kind is either origodb.OperationCommand.String() or
// origodb.OperationQuery.String().
func (a *RBACAuthorizer) AddPolicy(role, kind, typ string) error {
	if _, err := a.enforcer.AddPolicy(role, kind, typ); err != nil {
		return fmt.Errorf("auth: add policy: %w", err)
	}
	a.enforcer.InvalidateCache()
	return nil
}

func (a *RBACAuthorizer) Allows(op origodb.Operation, caller string) bool {
	ok, err := a.enforcer.Enforce(caller, op.Kind.String(), op.Type)
	if err != nil {
		return false
	}
	return ok
}

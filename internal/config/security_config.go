// config/security_config.go
package config

type SecurityLevel int

const (
	SecurityPublic   SecurityLevel = iota // No authentication
	SecurityService                       // Service token required
	SecurityAccess                        // Access token required
	SecurityAdmin                         // Access token with ADMIN role for the org
	SecurityTerminal                      // Service token, or access token with a role in the body's org
)

// EndpointSecurityConfig maps "METHOD path-template" to its required security level
var EndpointSecurityConfig = map[string]SecurityLevel{
	// Infrastructure - Public
	"GET /healthz": SecurityPublic,
	"GET /metrics": SecurityPublic,

	// Redemption - Terminal Protected, the operator PIN in the body identifies the seller
	"POST /cashback/redemption": SecurityTerminal,

	// Sale lifecycle hooks - Service Protected
	"POST /internal/sales/completed": SecurityService,
	"POST /internal/sales/canceled":  SecurityService,
	"POST /internal/clients":         SecurityService,

	// Program administration - Admin Protected
	"GET /orgs/{orgId}/cashback/program":  SecurityAdmin,
	"POST /orgs/{orgId}/cashback/program": SecurityAdmin,
	"PUT /orgs/{orgId}/cashback/program":  SecurityAdmin,

	// Balances - Admin Protected
	"GET /orgs/{orgId}/clients/{clientId}/cashback/balance":      SecurityAdmin,
	"GET /orgs/{orgId}/clients/{clientId}/cashback/transactions": SecurityAdmin,
}

// GetSecurityLevel returns the security level for a given route
func GetSecurityLevel(route string) SecurityLevel {
	if level, exists := EndpointSecurityConfig[route]; exists {
		return level
	}
	// Default to highest security for unknown endpoints
	return SecurityAdmin
}

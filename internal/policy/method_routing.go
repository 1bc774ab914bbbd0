package policy

import "github.com/attaboy/walletcore/internal/domain"

// MethodRoutingPolicy defines which payment methods may carry which request types.
type MethodRoutingPolicy struct {
	BlockedMethods    []domain.PaymentMethod `json:"blocked_methods,omitempty"`
	DepositMethods    []domain.PaymentMethod `json:"deposit_methods,omitempty"`    // empty = all allowed
	WithdrawalMethods []domain.PaymentMethod `json:"withdrawal_methods,omitempty"` // empty = all allowed
}

// DefaultMethodRoutingPolicy allows every method in both directions.
func DefaultMethodRoutingPolicy() MethodRoutingPolicy {
	return MethodRoutingPolicy{}
}

// MethodRouteEvaluation holds the result of a routing check.
type MethodRouteEvaluation struct {
	Allowed bool   `json:"allowed"`
	Reason  string `json:"reason,omitempty"`
}

// EvaluateMethodRoute checks if method may be used for a request of reqType.
func EvaluateMethodRoute(p MethodRoutingPolicy, method domain.PaymentMethod, reqType domain.RequestType) MethodRouteEvaluation {
	if !method.Valid() {
		return MethodRouteEvaluation{Reason: "unknown payment method: " + string(method)}
	}
	if contains(p.BlockedMethods, method) {
		return MethodRouteEvaluation{Reason: "method blocked: " + string(method)}
	}

	allowed := p.DepositMethods
	if reqType == domain.RequestWithdrawal {
		allowed = p.WithdrawalMethods
	}
	if len(allowed) > 0 && !contains(allowed, method) {
		return MethodRouteEvaluation{Reason: string(method) + " not available for " + string(reqType)}
	}
	return MethodRouteEvaluation{Allowed: true}
}

func contains(list []domain.PaymentMethod, m domain.PaymentMethod) bool {
	for _, v := range list {
		if v == m {
			return true
		}
	}
	return false
}

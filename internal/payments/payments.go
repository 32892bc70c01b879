package payments

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// Charge is one payment request issued by a PayAction.
type Charge struct {
	CustomerID string
	AmountUSD  int
	PurposeID  string
}

type Invoice struct {
	ID         string
	CustomerID string
	AmountUSD  int
	Paid       bool
}

// Provider is the payment collaborator boundary. Implementations wrap
// the real billing service; the engine only sees this contract.
type Provider interface {
	Charge(ctx context.Context, c Charge) (string, error)
	CreateAccount(ctx context.Context, ownerID string) (string, error)
	CreateSubscription(ctx context.Context, customerID, planID string) (string, error)
	GetInvoice(ctx context.Context, id string) (Invoice, error)
}

// MemProvider records charges in memory. It backs tests and
// administrative flows that skip the real provider.
type MemProvider struct {
	mu       sync.Mutex
	Charges  []Charge
	invoices map[string]Invoice
	// Fail makes every call error, for exercising upstream-failure
	// paths.
	Fail bool
}

func NewMemProvider() *MemProvider {
	return &MemProvider{invoices: map[string]Invoice{}}
}

func (p *MemProvider) Charge(ctx context.Context, c Charge) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.Fail {
		return "", fmt.Errorf("payment provider unavailable")
	}
	p.Charges = append(p.Charges, c)
	inv := Invoice{ID: uuid.NewString(), CustomerID: c.CustomerID, AmountUSD: c.AmountUSD, Paid: true}
	p.invoices[inv.ID] = inv
	return inv.ID, nil
}

func (p *MemProvider) CreateAccount(ctx context.Context, ownerID string) (string, error) {
	if p.Fail {
		return "", fmt.Errorf("payment provider unavailable")
	}
	return "acct_" + uuid.NewString()[:8], nil
}

func (p *MemProvider) CreateSubscription(ctx context.Context, customerID, planID string) (string, error) {
	if p.Fail {
		return "", fmt.Errorf("payment provider unavailable")
	}
	return "sub_" + uuid.NewString()[:8], nil
}

func (p *MemProvider) GetInvoice(ctx context.Context, id string) (Invoice, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	inv, ok := p.invoices[id]
	if !ok {
		return Invoice{}, fmt.Errorf("invoice %s not found", id)
	}
	return inv, nil
}

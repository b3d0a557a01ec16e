package approval

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"

	"github.com/shopspring/decimal"

	"github.com/frahmantamala/payment-approval/internal/core/datamodel/payment"
	"github.com/frahmantamala/payment-approval/internal/currency"
)

type PolicyConfig struct {
	Threshold         decimal.Decimal
	ReferenceCurrency string
}

// Policy decides whether an outbound payment needs the authorization stage.
// Reload swaps the config for later decisions; snapshots already taken are untouched.
type Policy struct {
	cfg       atomic.Pointer[PolicyConfig]
	converter currency.Converter
}

func NewPolicy(cfg PolicyConfig, converter currency.Converter) *Policy {
	p := &Policy{converter: converter}
	p.Reload(cfg)
	return p
}

func (p *Policy) Reload(cfg PolicyConfig) {
	cfg.ReferenceCurrency = strings.ToUpper(cfg.ReferenceCurrency)
	p.cfg.Store(&cfg)
}

func (p *Policy) Config() PolicyConfig {
	return *p.cfg.Load()
}

func (p *Policy) RequiresAuthorization(ctx context.Context, amount decimal.Decimal, curr string, dir payment.Direction) (bool, error) {
	if dir == payment.DirectionInbound {
		return false, nil
	}

	cfg := p.cfg.Load()
	converted := amount
	if !strings.EqualFold(curr, cfg.ReferenceCurrency) {
		if p.converter == nil {
			return false, fmt.Errorf("%w: %s", currency.ErrUnsupportedCurrency, curr)
		}
		var err error
		converted, err = p.converter.Convert(ctx, amount, curr, cfg.ReferenceCurrency)
		if err != nil {
			return false, err
		}
	}

	return converted.GreaterThan(cfg.Threshold), nil
}

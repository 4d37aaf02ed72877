// Package session drives transactions through their engine on behalf of API
// callers. A session owns one engine and its pending transaction.
package session

import (
	"fmt"

	"github.com/rail-service/txengine/internal/domain/entities"
	domainerrors "github.com/rail-service/txengine/internal/domain/errors"
	"github.com/rail-service/txengine/internal/domain/services/txengine"
)

// Builder creates an unstarted engine for the wallet guid
type Builder func(guid string) txengine.Engine

// Factory picks the engine for a source account
type Factory struct {
	builders map[txengine.Kind]Builder
}

func NewFactory(builders map[txengine.Kind]Builder) *Factory {
	return &Factory{builders: builders}
}

// KindFor maps a source account to its engine: payment methods buy, non-custodial
// accounts send on their chain
func KindFor(source entities.SourceAccount) (txengine.Kind, error) {
	switch source.Kind {
	case entities.AccountKindPaymentMethod:
		return txengine.KindBuy, nil
	case entities.AccountKindNonCustodial:
		switch source.Currency.Code {
		case entities.BTC.Code:
			return txengine.KindBitcoin, nil
		case entities.ETH.Code, entities.MATIC.Code:
			return txengine.KindEthereum, nil
		case entities.XLM.Code:
			return txengine.KindStellar, nil
		}
	}
	return "", fmt.Errorf("%w: %s %s", domainerrors.ErrUnsupportedAccount, source.Kind, source.Currency.Code)
}

// New builds and starts the engine for source and target. Inputs the engine
// rejects come back as ErrUnsupportedAccount.
func (f *Factory) New(guid string, source entities.SourceAccount, target entities.TransactionTarget) (engine txengine.Engine, err error) {
	kind, err := KindFor(source)
	if err != nil {
		return nil, err
	}
	build, ok := f.builders[kind]
	if !ok {
		return nil, fmt.Errorf("%w: %s engine disabled", domainerrors.ErrUnsupportedAccount, kind)
	}
	engine = build(guid)
	engine.Start(source, target, nil)

	defer func() {
		if r := recover(); r != nil {
			engine, err = nil, fmt.Errorf("%w: %v", domainerrors.ErrUnsupportedAccount, r)
		}
	}()
	engine.AssertInputsValid()
	return engine, nil
}

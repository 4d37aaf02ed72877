package entities

// Engine state keys shared between engines and the session layer
const (
	EngineStateMemo    = "memo"
	EngineStateOrderID = "order_id"
)

// TransactionLimits bounds the amount of a transaction, in the source currency
type TransactionLimits struct {
	Minimum MoneyValue  `json:"minimum"`
	Maximum MoneyValue  `json:"maximum"`
	Daily   *MoneyValue `json:"daily,omitempty"`
}

// PendingTransaction is the work-in-progress state of one transaction. Engines treat it
// as a value: every operation returns an updated copy.
type PendingTransaction struct {
	Amount               MoneyValue         `json:"amount"`
	Available            MoneyValue         `json:"available"`
	FeeAmount            MoneyValue         `json:"feeAmount"`
	FeeForFullAvailable  MoneyValue         `json:"feeForFullAvailable"`
	FeeSelection         FeeSelection       `json:"feeSelection"`
	SelectedFiatCurrency Currency           `json:"selectedFiatCurrency"`
	Confirmations        []Confirmation     `json:"confirmations"`
	Limits               *TransactionLimits `json:"limits,omitempty"`
	ValidationState      ValidationState    `json:"validationState"`
	EngineState          map[string]any     `json:"engineState,omitempty"`
}

// FeeLevel returns the selected fee level
func (p PendingTransaction) FeeLevel() FeeLevel {
	return p.FeeSelection.SelectedLevel
}

// Update sets the amounts computed by an engine's update step
func (p PendingTransaction) Update(amount, available, fee, feeForFullAvailable MoneyValue) PendingTransaction {
	p.Amount = amount
	p.Available = available
	p.FeeAmount = fee
	p.FeeForFullAvailable = feeForFullAvailable
	return p
}

// WithFeeLevel selects a fee level, keeping the custom amount only for custom
func (p PendingTransaction) WithFeeLevel(level FeeLevel, custom *MoneyValue) PendingTransaction {
	sel := p.FeeSelection
	sel.AvailableLevels = append([]FeeLevel(nil), sel.AvailableLevels...)
	sel.SelectedLevel = level
	sel.CustomAmount = nil
	if level == FeeLevelCustom {
		sel.CustomAmount = custom
	}
	p.FeeSelection = sel
	return p
}

func (p PendingTransaction) WithConfirmations(confirmations []Confirmation) PendingTransaction {
	p.Confirmations = append([]Confirmation(nil), confirmations...)
	return p
}

func (p PendingTransaction) WithValidationState(state ValidationState) PendingTransaction {
	p.ValidationState = state
	return p
}

// Confirmation returns the first confirmation of type t
func (p PendingTransaction) Confirmation(t ConfirmationType) (Confirmation, bool) {
	for _, c := range p.Confirmations {
		if c.Type == t {
			return c, true
		}
	}
	return Confirmation{}, false
}

// HasConfirmation reports whether a confirmation of type t is present
func (p PendingTransaction) HasConfirmation(t ConfirmationType) bool {
	_, ok := p.Confirmation(t)
	return ok
}

// ReplaceConfirmation swaps the confirmation with the same type, or appends it
func (p PendingTransaction) ReplaceConfirmation(c Confirmation) PendingTransaction {
	out := make([]Confirmation, 0, len(p.Confirmations)+1)
	replaced := false
	for _, existing := range p.Confirmations {
		if existing.Type == c.Type && !replaced {
			out = append(out, c)
			replaced = true
			continue
		}
		out = append(out, existing)
	}
	if !replaced {
		out = append(out, c)
	}
	p.Confirmations = out
	return p
}

func (p PendingTransaction) cloneState() map[string]any {
	state := make(map[string]any, len(p.EngineState)+1)
	for k, v := range p.EngineState {
		state[k] = v
	}
	return state
}

func (p PendingTransaction) WithEngineState(key string, value any) PendingTransaction {
	state := p.cloneState()
	state[key] = value
	p.EngineState = state
	return p
}

func (p PendingTransaction) WithoutEngineState(key string) PendingTransaction {
	if _, ok := p.EngineState[key]; !ok {
		return p
	}
	state := p.cloneState()
	delete(state, key)
	p.EngineState = state
	return p
}

func (p PendingTransaction) EngineStateValue(key string) (any, bool) {
	v, ok := p.EngineState[key]
	return v, ok
}

// Memo returns the memo stored in engine state, if any
func (p PendingTransaction) Memo() *Memo {
	v, ok := p.EngineState[EngineStateMemo]
	if !ok {
		return nil
	}
	switch m := v.(type) {
	case Memo:
		return &m
	case *Memo:
		return m
	}
	return nil
}

// MinSpendable is the lower limit, or zero when no limits are set
func (p PendingTransaction) MinSpendable() MoneyValue {
	if p.Limits == nil {
		return Zero(p.Amount.Currency())
	}
	return p.Limits.Minimum
}

// MaxSpendable is the available balance capped by the maximum limit
func (p PendingTransaction) MaxSpendable() MoneyValue {
	if p.Limits == nil {
		return p.Available
	}
	if less, err := p.Limits.Maximum.LessThan(p.Available); err == nil && less {
		return p.Limits.Maximum
	}
	return p.Available
}

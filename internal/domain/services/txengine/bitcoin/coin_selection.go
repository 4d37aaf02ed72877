package bitcoin

import (
	"encoding/hex"
	"errors"
	"fmt"
	"sort"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
	"github.com/btcsuite/btcwallet/wallet/txauthor"
	"github.com/btcsuite/btcwallet/wallet/txrules"
	"github.com/btcsuite/btcwallet/wallet/txsizes"

	"github.com/rail-service/txengine/internal/domain/entities"
)

// MaxSupply is the largest amount any transaction may move, in satoshi
const MaxSupply = btcutil.MaxSatoshi

// CoinSelectionErrorKind classifies why a proposal could not be funded
type CoinSelectionErrorKind string

const (
	NoUnspentOutputs   CoinSelectionErrorKind = "noUnspentOutputs"
	BelowDustThreshold CoinSelectionErrorKind = "belowDustThreshold"
	FeeTooLow          CoinSelectionErrorKind = "feeTooLow"
	InsufficientFunds  CoinSelectionErrorKind = "insufficientFunds"
	Unknown            CoinSelectionErrorKind = "unknown"
)

// CoinSelectionError reports a failed selection together with the best the wallet
// can do instead: sending SweepAmount for SweepFee.
type CoinSelectionError struct {
	Kind        CoinSelectionErrorKind
	FinalFee    btcutil.Amount
	SweepAmount btcutil.Amount
	SweepFee    btcutil.Amount
	Err         error
}

func (e *CoinSelectionError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("coin selection failed: %s: %v", e.Kind, e.Err)
	}
	return "coin selection failed: " + string(e.Kind)
}

func (e *CoinSelectionError) Unwrap() error { return e.Err }

// Proposal is a desired spend
type Proposal struct {
	DestinationScript []byte
	ChangeScript      []byte
	Amount            btcutil.Amount
	FeeRate           btcutil.Amount // satoshi per vbyte
	Outputs           []entities.UnspentOutput
}

// Candidate is a funded proposal
type Candidate struct {
	Tx          *txauthor.AuthoredTx
	Amount      btcutil.Amount
	Fee         btcutil.Amount
	SweepAmount btcutil.Amount
	SweepFee    btcutil.Amount
}

// CoinSelector funds proposals with txauthor, largest outputs first
type CoinSelector struct {
	relayFeePerKb btcutil.Amount
}

func NewCoinSelector() *CoinSelector {
	return &CoinSelector{relayFeePerKb: txrules.DefaultRelayFeePerKb}
}

type spendable struct {
	outPoint wire.OutPoint
	value    btcutil.Amount
	script   []byte
}

func parseOutputs(outputs []entities.UnspentOutput) ([]spendable, error) {
	parsed := make([]spendable, 0, len(outputs))
	for _, o := range outputs {
		hash, err := chainhash.NewHashFromStr(o.TxHash)
		if err != nil {
			return nil, fmt.Errorf("invalid output hash %q: %w", o.TxHash, err)
		}
		script, err := hex.DecodeString(o.Script)
		if err != nil {
			return nil, fmt.Errorf("invalid output script for %s:%d: %w", o.TxHash, o.Index, err)
		}
		parsed = append(parsed, spendable{
			outPoint: *wire.NewOutPoint(hash, o.Index),
			value:    btcutil.Amount(o.Value),
			script:   script,
		})
	}
	sort.SliceStable(parsed, func(i, j int) bool { return parsed[i].value > parsed[j].value })
	return parsed, nil
}

// feeRatePerKb converts a sat/vB rate to the per-kvB rate txauthor and txrules use
func feeRatePerKb(rate btcutil.Amount) btcutil.Amount { return rate * 1000 }

// spendVSize estimates a signed transaction spending inputs to outputs with no
// change, counting input kinds the same way txauthor does
func spendVSize(inputs []spendable, outputs []*wire.TxOut) int {
	var nested, p2wpkh, p2tr, p2pkh int
	for _, in := range inputs {
		switch {
		case txscript.IsPayToScriptHash(in.script):
			nested++
		case txscript.IsPayToWitnessPubKeyHash(in.script):
			p2wpkh++
		case txscript.IsPayToTaproot(in.script):
			p2tr++
		default:
			p2pkh++
		}
	}
	return txsizes.EstimateVirtualSize(p2pkh, p2tr, p2wpkh, nested, outputs, 0)
}

// economical drops outputs worth no more than the fee of spending them
func economical(outputs []spendable, rate btcutil.Amount) []spendable {
	kept := make([]spendable, 0, len(outputs))
	for _, o := range outputs {
		if o.value <= txrules.FeeForSerializeSize(feeRatePerKb(rate), txsizes.GetMinInputVirtualSize(o.script)) {
			continue
		}
		kept = append(kept, o)
	}
	return kept
}

// Sweep is the largest amount the outputs can send to destination with no change,
// and the fee for doing so. Outputs worth less than their own input fee are left
// out.
func Sweep(outputs []spendable, destination []byte, rate btcutil.Amount) (amount, fee btcutil.Amount) {
	inputs := economical(outputs, rate)
	if len(inputs) == 0 {
		return 0, 0
	}
	var total btcutil.Amount
	for _, o := range inputs {
		total += o.value
	}
	vsize := spendVSize(inputs, []*wire.TxOut{wire.NewTxOut(0, destination)})
	fee = txrules.FeeForSerializeSize(feeRatePerKb(rate), vsize)
	if total <= fee {
		return 0, fee
	}
	return total - fee, fee
}

// IsDust reports whether amount paid to script is uneconomical to spend
func (s *CoinSelector) IsDust(amount btcutil.Amount, script []byte) bool {
	return txrules.IsDustOutput(wire.NewTxOut(int64(amount), script), s.relayFeePerKb)
}

// Select funds p. Every failure comes back as a *CoinSelectionError carrying the
// sweep fallback.
func (s *CoinSelector) Select(p Proposal) (Candidate, error) {
	outputs, err := parseOutputs(p.Outputs)
	if err != nil {
		return Candidate{}, &CoinSelectionError{Kind: Unknown, Err: err}
	}
	sweepAmount, sweepFee := Sweep(outputs, p.DestinationScript, p.FeeRate)
	fail := func(kind CoinSelectionErrorKind, err error) (Candidate, error) {
		return Candidate{}, &CoinSelectionError{
			Kind:        kind,
			FinalFee:    sweepFee,
			SweepAmount: sweepAmount,
			SweepFee:    sweepFee,
			Err:         err,
		}
	}

	switch {
	case len(outputs) == 0:
		return fail(NoUnspentOutputs, nil)
	case p.FeeRate <= 0:
		return fail(FeeTooLow, nil)
	case p.Amount <= 0 || s.IsDust(p.Amount, p.DestinationScript):
		return fail(BelowDustThreshold, nil)
	}

	txOut := []*wire.TxOut{wire.NewTxOut(int64(p.Amount), p.DestinationScript)}
	tx, err := txauthor.NewUnsignedTransaction(txOut, feeRatePerKb(p.FeeRate), inputSource(outputs), &txauthor.ChangeSource{
		NewScript:  func() ([]byte, error) { return p.ChangeScript, nil },
		ScriptSize: len(p.ChangeScript),
	})
	if err != nil {
		var inputErr txauthor.InputSourceError
		if !errors.As(err, &inputErr) {
			return fail(Unknown, err)
		}
		// txauthor always budgets for a change output. Amounts up to the sweep
		// still fit once every economical output is spent without one.
		if p.Amount > sweepAmount {
			return fail(InsufficientFunds, err)
		}
		tx = spendAll(economical(outputs, p.FeeRate), txOut)
	}

	fee := tx.TotalInput - txauthor.SumOutputValues(tx.Tx.TxOut)
	return Candidate{
		Tx:          tx,
		Amount:      p.Amount,
		Fee:         fee,
		SweepAmount: sweepAmount,
		SweepFee:    sweepFee,
	}, nil
}

func inputSource(outputs []spendable) txauthor.InputSource {
	var (
		total   btcutil.Amount
		inputs  = make([]*wire.TxIn, 0, len(outputs))
		values  = make([]btcutil.Amount, 0, len(outputs))
		scripts = make([][]byte, 0, len(outputs))
		next    int
	)
	return func(target btcutil.Amount) (btcutil.Amount, []*wire.TxIn, []btcutil.Amount, [][]byte, error) {
		for total < target && next < len(outputs) {
			o := outputs[next]
			next++
			op := o.outPoint
			inputs = append(inputs, wire.NewTxIn(&op, nil, nil))
			values = append(values, o.value)
			scripts = append(scripts, o.script)
			total += o.value
		}
		return total, inputs, values, scripts, nil
	}
}

// spendAll builds a transaction spending every input to outputs with no change.
// Whatever the outputs leave over goes to the fee.
func spendAll(inputs []spendable, outputs []*wire.TxOut) *txauthor.AuthoredTx {
	tx := &txauthor.AuthoredTx{
		Tx:              &wire.MsgTx{Version: wire.TxVersion, TxOut: outputs},
		PrevScripts:     make([][]byte, 0, len(inputs)),
		PrevInputValues: make([]btcutil.Amount, 0, len(inputs)),
		ChangeIndex:     -1,
	}
	for _, in := range inputs {
		op := in.outPoint
		tx.Tx.TxIn = append(tx.Tx.TxIn, wire.NewTxIn(&op, nil, nil))
		tx.PrevScripts = append(tx.PrevScripts, in.script)
		tx.PrevInputValues = append(tx.PrevInputValues, in.value)
		tx.TotalInput += in.value
	}
	return tx
}

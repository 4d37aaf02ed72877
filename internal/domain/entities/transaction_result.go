package entities

// TransactionResultKind distinguishes on-chain from custodial results
type TransactionResultKind string

const (
	TransactionResultHashed   TransactionResultKind = "hashed"
	TransactionResultUnHashed TransactionResultKind = "unHashed"
)

// TransactionResult is what Execute returns
type TransactionResult struct {
	Kind   TransactionResultKind `json:"kind"`
	TxHash string                `json:"txHash,omitempty"`
	Amount MoneyValue            `json:"amount"`
	Order  *BuyOrder             `json:"order,omitempty"`
}

func HashedResult(txHash string, amount MoneyValue) TransactionResult {
	return TransactionResult{Kind: TransactionResultHashed, TxHash: txHash, Amount: amount}
}

func UnHashedResult(amount MoneyValue, order *BuyOrder) TransactionResult {
	return TransactionResult{Kind: TransactionResultUnHashed, Amount: amount, Order: order}
}

package anchor

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"reflect"
	"strings"

	ethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
)

// easABI covers only the EAS functions this system calls: attest,
// isAttestationValid and getAttestation. Full ABI at
// https://github.com/ethereum-attestation-service/eas-contracts.
const easABI = `[
	{
		"inputs": [{
			"components": [
				{"internalType": "bytes32", "name": "schema", "type": "bytes32"},
				{"components": [
					{"internalType": "address", "name": "recipient", "type": "address"},
					{"internalType": "uint64", "name": "expirationTime", "type": "uint64"},
					{"internalType": "bool", "name": "revocable", "type": "bool"},
					{"internalType": "bytes32", "name": "refUID", "type": "bytes32"},
					{"internalType": "bytes", "name": "data", "type": "bytes"},
					{"internalType": "uint256", "name": "value", "type": "uint256"}
				], "internalType": "struct AttestationRequestData", "name": "data", "type": "tuple"}
			], "internalType": "struct AttestationRequest", "name": "request", "type": "tuple"
		}],
		"name": "attest",
		"outputs": [{"internalType": "bytes32", "name": "", "type": "bytes32"}],
		"stateMutability": "payable",
		"type": "function"
	},
	{
		"inputs": [{"internalType": "bytes32", "name": "uid", "type": "bytes32"}],
		"name": "isAttestationValid",
		"outputs": [{"internalType": "bool", "name": "", "type": "bool"}],
		"stateMutability": "view",
		"type": "function"
	},
	{
		"inputs": [{"internalType": "bytes32", "name": "uid", "type": "bytes32"}],
		"name": "getAttestation",
		"outputs": [{
			"components": [
				{"internalType": "bytes32", "name": "uid", "type": "bytes32"},
				{"internalType": "bytes32", "name": "schema", "type": "bytes32"},
				{"internalType": "uint64", "name": "time", "type": "uint64"},
				{"internalType": "uint64", "name": "expirationTime", "type": "uint64"},
				{"internalType": "uint64", "name": "revocationTime", "type": "uint64"},
				{"internalType": "bytes32", "name": "refUID", "type": "bytes32"},
				{"internalType": "address", "name": "recipient", "type": "address"},
				{"internalType": "address", "name": "attester", "type": "address"},
				{"internalType": "bool", "name": "revocable", "type": "bool"},
				{"internalType": "bytes", "name": "data", "type": "bytes"}
			], "internalType": "struct Attestation", "name": "", "type": "tuple"
		}],
		"stateMutability": "view",
		"type": "function"
	}
]`

type easAttestationRequestData struct {
	Recipient      common.Address
	ExpirationTime uint64
	Revocable      bool
	RefUID         [32]byte
	Data           []byte
	Value          *big.Int
}

type easAttestationRequest struct {
	Schema [32]byte
	Data   easAttestationRequestData
}

// EASLedger is a Ledger backed by the Ethereum Attestation Service contract
// at EASContractAddress, reached over JSON-RPC via go-ethereum.
type EASLedger struct {
	client     *ethclient.Client
	contract   *bind.BoundContract
	parsedABI  abi.ABI
	chainID    *big.Int
	privateKey *ecdsa.PrivateKey
	schemaUID  [32]byte
}

// NewEASLedger dials rpcURL and binds the EAS contract. privateKeyHex signs
// outgoing attestation transactions; schemaUIDHex is the hex-encoded UID
// returned by a prior SchemaRegistry.register(AttestationSchema) call.
func NewEASLedger(ctx context.Context, rpcURL, privateKeyHex string, chainID int64, schemaUIDHex string) (*EASLedger, error) {
	client, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, fmt.Errorf("anchor: failed to dial %s: %w", rpcURL, err)
	}

	parsed, err := abi.JSON(strings.NewReader(easABI))
	if err != nil {
		return nil, fmt.Errorf("anchor: failed to parse EAS ABI: %w", err)
	}

	privateKey, err := crypto.HexToECDSA(strings.TrimPrefix(privateKeyHex, "0x"))
	if err != nil {
		return nil, fmt.Errorf("anchor: invalid ledger signing key: %w", err)
	}

	schemaUID, err := decodeUID(schemaUIDHex)
	if err != nil {
		return nil, fmt.Errorf("anchor: invalid schema UID: %w", err)
	}

	addr := common.HexToAddress(EASContractAddress)
	return &EASLedger{
		client:     client,
		contract:   bind.NewBoundContract(addr, parsed, client, client, client),
		parsedABI:  parsed,
		chainID:    big.NewInt(chainID),
		privateKey: privateKey,
		schemaUID:  schemaUID,
	}, nil
}

// Submit calls EAS.attest with req.Data and waits for the transaction to be
// mined, returning its receipt.
func (l *EASLedger) Submit(ctx context.Context, req AttestationRequest) (AttestationReceipt, error) {
	auth, err := bind.NewKeyedTransactorWithChainID(l.privateKey, l.chainID)
	if err != nil {
		return AttestationReceipt{}, fmt.Errorf("anchor: failed to create transactor: %w", err)
	}
	auth.Context = ctx

	recipient := common.HexToAddress(req.Recipient)

	tx, err := l.contract.Transact(auth, "attest", easAttestationRequest{
		Schema: l.schemaUID,
		Data: easAttestationRequestData{
			Recipient:      recipient,
			ExpirationTime: req.ExpirationTime,
			Revocable:      req.Revocable,
			RefUID:         [32]byte{},
			Data:           req.Data,
			Value:          big.NewInt(0),
		},
	})
	if err != nil {
		return AttestationReceipt{}, fmt.Errorf("anchor: attest transaction failed: %w", err)
	}

	receipt, err := bind.WaitMined(ctx, l.client, tx)
	if err != nil {
		return AttestationReceipt{}, fmt.Errorf("anchor: waiting for attest receipt: %w", err)
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return AttestationReceipt{}, fmt.Errorf("anchor: attest transaction reverted")
	}

	uid, err := attestationUIDFromReceipt(receipt)
	if err != nil {
		return AttestationReceipt{}, err
	}

	return AttestationReceipt{
		TxHash:         tx.Hash().Hex(),
		BlockNumber:    receipt.BlockNumber.Uint64(),
		AttestationUID: uid,
	}, nil
}

// Check calls EAS.isAttestationValid and getAttestation.attester for uid.
func (l *EASLedger) Check(ctx context.Context, attestationUID string) (bool, string, error) {
	uid, err := decodeUID(attestationUID)
	if err != nil {
		return false, "", fmt.Errorf("anchor: invalid attestation uid: %w", err)
	}
	contractAddr := common.HexToAddress(EASContractAddress)

	validData, err := l.parsedABI.Pack("isAttestationValid", uid)
	if err != nil {
		return false, "", fmt.Errorf("anchor: encoding isAttestationValid call: %w", err)
	}
	validRaw, err := l.client.CallContract(ctx, ethereum.CallMsg{To: &contractAddr, Data: validData}, nil)
	if err != nil {
		return false, "", fmt.Errorf("anchor: isAttestationValid call failed: %w", err)
	}
	validOut, err := l.parsedABI.Unpack("isAttestationValid", validRaw)
	if err != nil || len(validOut) == 0 {
		return false, "", fmt.Errorf("anchor: decoding isAttestationValid result: %w", err)
	}
	valid, _ := validOut[0].(bool)

	attData, err := l.parsedABI.Pack("getAttestation", uid)
	if err != nil {
		return valid, "", fmt.Errorf("anchor: encoding getAttestation call: %w", err)
	}
	attRaw, err := l.client.CallContract(ctx, ethereum.CallMsg{To: &contractAddr, Data: attData}, nil)
	if err != nil {
		return valid, "", fmt.Errorf("anchor: getAttestation call failed: %w", err)
	}
	attOut, err := l.parsedABI.Unpack("getAttestation", attRaw)
	if err != nil || len(attOut) == 0 {
		return valid, "", fmt.Errorf("anchor: decoding getAttestation result: %w", err)
	}

	return valid, attesterFromTuple(attOut[0]), nil
}

// attesterFromTuple pulls the Attester field out of the anonymous struct
// go-ethereum's abi package generates for the getAttestation tuple output.
func attesterFromTuple(v any) string {
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Struct {
		return ""
	}
	f := rv.FieldByName("Attester")
	if !f.IsValid() {
		return ""
	}
	addr, ok := f.Interface().(common.Address)
	if !ok {
		return ""
	}
	return addr.Hex()
}

func decodeUID(hexStr string) ([32]byte, error) {
	var out [32]byte
	b := common.FromHex(hexStr)
	if len(b) != 32 {
		return out, fmt.Errorf("expected 32 bytes, got %d", len(b))
	}
	copy(out[:], b)
	return out, nil
}

// estimatedAttestGas is a fixed gas-unit estimate for one attest() call,
// in line with the typical cost observed for this schema's fixed-size
// tuple payload — avoids a speculative eth_estimateGas call against data
// that may not yet be mined.
const estimatedAttestGas = 250_000

// EstimateGas reports current Base L2 gas pricing and the signer's
// balance, implementing the anchor.GasEstimator optional interface.
func (l *EASLedger) EstimateGas(ctx context.Context) (GasEstimate, error) {
	gasPrice, err := l.client.SuggestGasPrice(ctx)
	if err != nil {
		return GasEstimate{}, fmt.Errorf("anchor: failed to fetch gas price: %w", err)
	}

	wallet := crypto.PubkeyToAddress(l.privateKey.PublicKey)
	balance, err := l.client.BalanceAt(ctx, wallet, nil)
	if err != nil {
		return GasEstimate{}, fmt.Errorf("anchor: failed to fetch wallet balance: %w", err)
	}

	cost := new(big.Int).Mul(big.NewInt(estimatedAttestGas), gasPrice)

	return GasEstimate{
		ChainID:          l.chainID.Int64(),
		Wallet:           wallet.Hex(),
		BalanceWei:       balance.String(),
		EstimatedGas:     estimatedAttestGas,
		GasPriceWei:      gasPrice.String(),
		EstimatedCostWei: cost.String(),
		SufficientFunds:  balance.Cmp(cost) >= 0,
	}, nil
}

// attestationUIDFromReceipt recovers the UID EAS assigned to a new
// attestation from the Attested event log; EAS does not surface a
// transaction's return value directly. The uid is the event's one
// non-indexed field, so it is read from the log data; the topics hold the
// recipient, the attester and the schema UID.
func attestationUIDFromReceipt(receipt *types.Receipt) (string, error) {
	if len(receipt.Logs) == 0 {
		return "", fmt.Errorf("anchor: no logs in attest receipt")
	}
	lastLog := receipt.Logs[len(receipt.Logs)-1]
	if len(lastLog.Data) < 32 {
		return "", fmt.Errorf("anchor: attest log missing uid data")
	}
	return common.BytesToHash(lastLog.Data[:32]).Hex(), nil
}

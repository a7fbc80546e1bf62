package model

import "fmt"

// Role is the capability level of an authenticated user.
type Role string

const (
	RoleAdministrador Role = "administrador"
	RoleSupervisor    Role = "supervisor"
	RoleCajero        Role = "cajero"
)

func (r Role) Valid() bool {
	switch r {
	case RoleAdministrador, RoleSupervisor, RoleCajero:
		return true
	}
	return false
}

func ParseRole(s string) (Role, error) {
	r := Role(s)
	if !r.Valid() {
		return "", fmt.Errorf("rol desconocido: %q", s)
	}
	return r, nil
}

// SessionStatus: "abierta" | "cerrada". The only transition is abierta → cerrada.
type SessionStatus string

const (
	SessionOpen   SessionStatus = "abierta"
	SessionClosed SessionStatus = "cerrada"
)

func (s SessionStatus) Valid() bool {
	return s == SessionOpen || s == SessionClosed
}

func ParseSessionStatus(s string) (SessionStatus, error) {
	st := SessionStatus(s)
	if !st.Valid() {
		return "", fmt.Errorf("estado de sesion desconocido: %q", s)
	}
	return st, nil
}

// TransactionKind classifies a cash ledger posting. Amounts are always stored
// as positive magnitudes; the kind decides the effect on the expected cash.
type TransactionKind string

const (
	TxVenta   TransactionKind = "venta"
	TxIngreso TransactionKind = "ingreso"
	TxEgreso  TransactionKind = "egreso"
	TxArqueo  TransactionKind = "arqueo"
)

func (k TransactionKind) Valid() bool {
	switch k {
	case TxVenta, TxIngreso, TxEgreso, TxArqueo:
		return true
	}
	return false
}

// Sign returns +1 for kinds that add to the drawer, -1 for withdrawals and 0
// for counts, which never change the expected amount.
func (k TransactionKind) Sign() int {
	switch k {
	case TxVenta, TxIngreso:
		return 1
	case TxEgreso:
		return -1
	}
	return 0
}

// ParseTransactionKind accepts the canonical codes plus the legacy aliases
// "deposito" and "retiro".
func ParseTransactionKind(s string) (TransactionKind, error) {
	switch s {
	case "deposito":
		return TxIngreso, nil
	case "retiro":
		return TxEgreso, nil
	}
	k := TransactionKind(s)
	if !k.Valid() {
		return "", fmt.Errorf("tipo de transaccion desconocido: %q", s)
	}
	return k, nil
}

// MovementKind classifies an inventory movement.
type MovementKind string

const (
	MovEntrada   MovementKind = "entrada"
	MovSalida    MovementKind = "salida"
	MovAjuste    MovementKind = "ajuste"
	MovVenta     MovementKind = "venta"
	MovRecepcion MovementKind = "recepcion"
)

func (k MovementKind) Valid() bool {
	switch k {
	case MovEntrada, MovSalida, MovAjuste, MovVenta, MovRecepcion:
		return true
	}
	return false
}

func ParseMovementKind(s string) (MovementKind, error) {
	k := MovementKind(s)
	if !k.Valid() {
		return "", fmt.Errorf("tipo de movimiento desconocido: %q", s)
	}
	return k, nil
}

// SaleStatus: completada → cancelada | anulada. Totals never change.
type SaleStatus string

const (
	SaleCompleted SaleStatus = "completada"
	SaleCancelled SaleStatus = "cancelada"
	SaleVoided    SaleStatus = "anulada"
)

func (s SaleStatus) Valid() bool {
	switch s {
	case SaleCompleted, SaleCancelled, SaleVoided:
		return true
	}
	return false
}

func ParseSaleStatus(s string) (SaleStatus, error) {
	st := SaleStatus(s)
	if !st.Valid() {
		return "", fmt.Errorf("estado de venta desconocido: %q", s)
	}
	return st, nil
}

// ReceiptStatus tracks the async ticket pipeline.
type ReceiptStatus string

const (
	ReceiptPending   ReceiptStatus = "pendiente"
	ReceiptGenerated ReceiptStatus = "generado"
	ReceiptSent      ReceiptStatus = "enviado"
	ReceiptFailed    ReceiptStatus = "error"
)

package store

import "time"

// TransactionType is the kind of ledger-settled operation a Transaction
// row records.
type TransactionType string

const (
	TxSend    TransactionType = "SEND"
	TxSplit   TransactionType = "SPLIT"
	TxFund    TransactionType = "FUND"
	TxTicket  TransactionType = "TICKET"
	TxReceive TransactionType = "RECEIVE"
)

// TransactionStatus is the lifecycle state of a Transaction row.
type TransactionStatus string

const (
	TxPending   TransactionStatus = "PENDING"
	TxConfirmed TransactionStatus = "CONFIRMED"
	TxFailed    TransactionStatus = "FAILED"
)

// SplitStatus is the lifecycle state of a SplitBill.
type SplitStatus string

const (
	SplitPending   SplitStatus = "PENDING"
	SplitCompleted SplitStatus = "COMPLETED"
	SplitCancelled SplitStatus = "CANCELLED"
)

// CommitmentStatus is the lifecycle state of a PaymentCommitment.
type CommitmentStatus string

const (
	CommitmentActive    CommitmentStatus = "ACTIVE"
	CommitmentCompleted CommitmentStatus = "COMPLETED"
	CommitmentCanceled  CommitmentStatus = "CANCELED"
	CommitmentExpired   CommitmentStatus = "EXPIRED"
)

// ParticipantStatus is the lifecycle state of a CommitmentParticipant.
type ParticipantStatus string

const (
	ParticipantInvited  ParticipantStatus = "INVITED"
	ParticipantLocked   ParticipantStatus = "LOCKED"
	ParticipantReleased ParticipantStatus = "RELEASED"
	ParticipantRefunded ParticipantStatus = "REFUNDED"
	ParticipantMissed   ParticipantStatus = "MISSED"
)

// User is the custodial account holder, keyed by messaging phone.
type User struct {
	Phone            string
	Address          string
	EncryptedSecret  string
	DisplayName      *string
	CreatedAt        time.Time
}

// Contact is a per-user nickname → phone mapping.
type Contact struct {
	ID             string
	OwnerPhone     string
	NicknameLower  string
	ContactPhone   string
	CreatedAt      time.Time
}

// Transaction is the ledger-settlement record behind every payment.
type Transaction struct {
	ID             string
	TxID           *string
	SenderPhone    string
	SenderAddress  string
	ReceiverPhone  *string
	ReceiverAddress string
	Amount         float64
	Type           TransactionType
	Status         TransactionStatus
	Note           string
	SplitID        *string
	FundID         *string
	MerchantID     *string
	PaymentRef     *string
	CreatedAt      time.Time
	ConfirmedAt    *time.Time
}

// SplitBill is a bill-split pool with per-participant shares.
type SplitBill struct {
	ID          string
	Initiator   string
	TotalAmount float64
	Description string
	Status      SplitStatus
	CreatedAt   time.Time
	CompletedAt *time.Time
}

// SplitPayment is one participant's share of a SplitBill.
type SplitPayment struct {
	ID          string
	SplitBillID string
	Participant string
	Amount      float64
	IsPaid      bool
	TxID        *string
	PaidAt      *time.Time
}

// Fund is a fundraising campaign.
type Fund struct {
	ID            string
	Creator       string
	Title         string
	GoalAmount    float64
	CurrentAmount float64
	IsGoalMet     bool
	IsActive      bool
	Deadline      time.Time
	CreatedAt     time.Time
}

// FundContribution is one contribution toward a Fund.
type FundContribution struct {
	ID          string
	FundID      string
	Contributor string
	Amount      float64
	TxID        string
	CreatedAt   time.Time
}

// Event is a ticketed event.
type Event struct {
	ID             string
	Name           string
	Category       string
	Venue          string
	Date           time.Time
	TicketPrice    float64
	TotalCapacity  int
	TicketsSold    int
	IsActive       bool
}

// Ticket is an NFT-backed event ticket.
type Ticket struct {
	ID            string
	Owner         string
	EventID       string
	EventName     string
	AssetID       int64
	TicketNumber  string
	IsValid       bool
	IsUsed        bool
	UsedAt        *time.Time
	CreatedAt     time.Time
}

// PaymentCommitment is the escrow root entity for the Commitment Escrow
// Engine.
type PaymentCommitment struct {
	ID                  string
	Organizer           string
	Title               string
	Description         string
	AmountPerPerson     float64
	TotalParticipants   int
	Deadline            time.Time
	EscrowAddress       string
	EncryptedEscrowKey  string
	Status              CommitmentStatus
	TotalLocked         float64
	ParticipantsLocked  int
	ReleasedAt          *time.Time
	ReleasedTxID        *string
	CreatedAt           time.Time
}

// CommitmentParticipant is one invitee's stake in a PaymentCommitment.
type CommitmentParticipant struct {
	ID            string
	CommitmentID  string
	Phone         string
	WalletAddress string
	Amount        float64
	Status        ParticipantStatus
	LockTxID      *string
	ReleaseTxID   *string
	InvitedAt     time.Time
	LockedAt      *time.Time
	SettledAt     *time.Time
}

// ReliabilityScore tracks a phone's commitment-fulfillment history.
type ReliabilityScore struct {
	Phone            string
	Total            int
	FulfilledOnTime  int
	FulfilledLate    int
	Missed           int
	Score            int
}

// AuditLog is a supplemental append-only record of security-relevant
// actions (commitment creation, release and cancellation).
type AuditLog struct {
	ID            string
	Actor         string
	Action        string
	EntityType    string
	EntityID      string
	Detail        string
	CorrelationID string
	CreatedAt     time.Time
}

// Merchant is a supplemental entity for payments carrying a merchant
// reference, letting Transaction.merchant_id resolve to a display name.
type Merchant struct {
	ID        string
	Name      string
	Phone     string
	CreatedAt time.Time
}

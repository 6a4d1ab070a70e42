package repo

import "time"

// Lados de um prop. Todo prop é binário; o label exibido fica no registro.
const (
	SideA = "A"
	SideB = "B"
)

// Ciclo de vida de um prop: open -> closed -> graded (terminal)
const (
	PropOpen   = "open"
	PropClosed = "closed"
	PropGraded = "graded"
)

// Status de um take: criado como latest; vira overwritten quando o mesmo
// identity submete de novo no mesmo prop. Nunca é deletado.
const (
	TakeLatest      = "latest"
	TakeOverwritten = "overwritten"
)

const (
	ResultPending = "pending"
	ResultWon     = "won"
	ResultLost    = "lost"
)

// Prop é a proposição binária persistida no Postgres.
type Prop struct {
	ID            string
	PackID        string
	ContestID     string
	Subject       string
	SideALabel    string
	SideBLabel    string
	EventRef      string
	Status        string
	WinningSide   string // vazio até a apuração
	Points        int
	FormulaKey    string
	FormulaParams []byte
	CreatedAt     time.Time
}

// Take é a escolha registrada de um identity em um prop.
type Take struct {
	ID            string
	PropID        string
	IdentityID    string
	ReceiptID     string
	Side          string
	Status        string
	Result        string
	PointsAwarded int // válido só quando Result != pending
	CreatedAt     time.Time
}

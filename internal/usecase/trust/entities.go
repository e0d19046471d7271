package trust

// Points are the score movements applied per event.
type Points struct {
	Early           int
	Ontime          int
	Late            int
	DefaultPenalty  int
	VoucherPenalty  int
	CompletionBonus int
}

func DefaultPoints() Points {
	return Points{Early: 7, Ontime: 5, Late: 1, DefaultPenalty: 100, VoucherPenalty: 25, CompletionBonus: 20}
}

type CreateVouchInput struct {
	VoucherID    string
	VoucheeID    string
	Relationship string
	Message      string
}

// Timeliness classifies a payment against its due date.
type Timeliness string

const (
	Early  Timeliness = "early"
	Ontime Timeliness = "ontime"
	Late   Timeliness = "late"
)

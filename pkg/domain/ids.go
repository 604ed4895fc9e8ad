package domain

import (
	"fmt"

	"github.com/google/uuid"
)

// Typed entity identifiers. Using distinct types instead of bare uuid.UUID
// means a SampleTestID can never be passed where a SampleID is expected;
// the compiler enforces what would otherwise be a runtime mixup.
type (
	UserID          uuid.UUID
	ClientID        uuid.UUID
	ProductID       uuid.UUID
	TestMethodID    uuid.UUID
	InstrumentID    uuid.UUID
	JobID           uuid.UUID
	SampleID        uuid.UUID
	SampleTestID    uuid.UUID
	TestResultID    uuid.UUID
	ChartID         uuid.UUID
	DataPointID     uuid.UUID
	InvestigationID uuid.UUID
	NotificationID  uuid.UUID
)

func parseID(kind, s string) (uuid.UUID, error) {
	u, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, fmt.Errorf("invalid %s: %w", kind, err)
	}
	if u == uuid.Nil {
		return uuid.Nil, fmt.Errorf("invalid %s: nil UUID", kind)
	}
	return u, nil
}

// ParseUserID validates and returns a UserID. The nil UUID is rejected so a
// zero value can never masquerade as a real identity.
func ParseUserID(s string) (UserID, error) {
	u, err := parseID("user id", s)
	return UserID(u), err
}

func ParseClientID(s string) (ClientID, error) {
	u, err := parseID("client id", s)
	return ClientID(u), err
}

func ParseProductID(s string) (ProductID, error) {
	u, err := parseID("product id", s)
	return ProductID(u), err
}

func ParseTestMethodID(s string) (TestMethodID, error) {
	u, err := parseID("test method id", s)
	return TestMethodID(u), err
}

func ParseInstrumentID(s string) (InstrumentID, error) {
	u, err := parseID("instrument id", s)
	return InstrumentID(u), err
}

func ParseJobID(s string) (JobID, error) {
	u, err := parseID("job id", s)
	return JobID(u), err
}

func ParseSampleID(s string) (SampleID, error) {
	u, err := parseID("sample id", s)
	return SampleID(u), err
}

func ParseSampleTestID(s string) (SampleTestID, error) {
	u, err := parseID("sample test id", s)
	return SampleTestID(u), err
}

func ParseTestResultID(s string) (TestResultID, error) {
	u, err := parseID("test result id", s)
	return TestResultID(u), err
}

func ParseChartID(s string) (ChartID, error) {
	u, err := parseID("chart id", s)
	return ChartID(u), err
}

func ParseInvestigationID(s string) (InvestigationID, error) {
	u, err := parseID("investigation id", s)
	return InvestigationID(u), err
}

func ParseDataPointID(s string) (DataPointID, error) {
	u, err := parseID("data point id", s)
	return DataPointID(u), err
}

func ParseNotificationID(s string) (NotificationID, error) {
	u, err := parseID("notification id", s)
	return NotificationID(u), err
}

func (id UserID) String() string          { return uuid.UUID(id).String() }
func (id ClientID) String() string        { return uuid.UUID(id).String() }
func (id ProductID) String() string       { return uuid.UUID(id).String() }
func (id TestMethodID) String() string    { return uuid.UUID(id).String() }
func (id InstrumentID) String() string    { return uuid.UUID(id).String() }
func (id JobID) String() string           { return uuid.UUID(id).String() }
func (id SampleID) String() string        { return uuid.UUID(id).String() }
func (id SampleTestID) String() string    { return uuid.UUID(id).String() }
func (id TestResultID) String() string    { return uuid.UUID(id).String() }
func (id ChartID) String() string         { return uuid.UUID(id).String() }
func (id DataPointID) String() string     { return uuid.UUID(id).String() }
func (id InvestigationID) String() string { return uuid.UUID(id).String() }
func (id NotificationID) String() string  { return uuid.UUID(id).String() }

func (id UserID) IsNil() bool          { return uuid.UUID(id) == uuid.Nil }
func (id ClientID) IsNil() bool        { return uuid.UUID(id) == uuid.Nil }
func (id ProductID) IsNil() bool       { return uuid.UUID(id) == uuid.Nil }
func (id TestMethodID) IsNil() bool    { return uuid.UUID(id) == uuid.Nil }
func (id InstrumentID) IsNil() bool    { return uuid.UUID(id) == uuid.Nil }
func (id JobID) IsNil() bool           { return uuid.UUID(id) == uuid.Nil }
func (id SampleID) IsNil() bool        { return uuid.UUID(id) == uuid.Nil }
func (id SampleTestID) IsNil() bool    { return uuid.UUID(id) == uuid.Nil }
func (id TestResultID) IsNil() bool    { return uuid.UUID(id) == uuid.Nil }
func (id ChartID) IsNil() bool         { return uuid.UUID(id) == uuid.Nil }
func (id DataPointID) IsNil() bool     { return uuid.UUID(id) == uuid.Nil }
func (id InvestigationID) IsNil() bool { return uuid.UUID(id) == uuid.Nil }
func (id NotificationID) IsNil() bool  { return uuid.UUID(id) == uuid.Nil }

// NewUserID and friends mint fresh identifiers. Kept as functions rather than
// exposing uuid.New at call sites so stores and tests read uniformly.
func NewUserID() UserID                   { return UserID(uuid.New()) }
func NewClientID() ClientID               { return ClientID(uuid.New()) }
func NewProductID() ProductID             { return ProductID(uuid.New()) }
func NewTestMethodID() TestMethodID       { return TestMethodID(uuid.New()) }
func NewInstrumentID() InstrumentID       { return InstrumentID(uuid.New()) }
func NewJobID() JobID                     { return JobID(uuid.New()) }
func NewSampleID() SampleID               { return SampleID(uuid.New()) }
func NewSampleTestID() SampleTestID       { return SampleTestID(uuid.New()) }
func NewTestResultID() TestResultID       { return TestResultID(uuid.New()) }
func NewChartID() ChartID                 { return ChartID(uuid.New()) }
func NewDataPointID() DataPointID         { return DataPointID(uuid.New()) }
func NewInvestigationID() InvestigationID { return InvestigationID(uuid.New()) }
func NewNotificationID() NotificationID   { return NotificationID(uuid.New()) }

// Package profile composes the member profile page from independent store reads.
package profile

import (
	"context"

	"github.com/NomadCrew/dojo-portal/internal/payments"
	"github.com/NomadCrew/dojo-portal/logger"
	"github.com/NomadCrew/dojo-portal/pkg/valueobjects"
	"github.com/NomadCrew/dojo-portal/types"
	"github.com/sourcegraph/conc"
	"github.com/sourcegraph/conc/panics"
	"go.uber.org/zap"
)

// Store is the part of the document store the profile reads.
// *portal.Client satisfies it.
type Store interface {
	ClassHistory(ctx context.Context, username string) ([]types.ClassRecord, error)
	PaymentHistory(ctx context.Context, username string) ([]types.PaymentRecord, error)
	CoachByID(ctx context.Context, id string) (*types.CoachDetail, error)
}

// Section is one independently loaded part of the profile. A failed section
// carries a message and no data; the other sections are unaffected.
type Section[T any] struct {
	Loaded bool   `json:"loaded"`
	Error  string `json:"error,omitempty"`
	Data   T      `json:"data"`
}

// Payments is the grouped payment history with its totals.
type Payments struct {
	Records []types.PaymentRecord `json:"records"`
	Summary types.PaymentSummary  `json:"summary"`
}

// View is the whole profile. Users get Classes and Payments; coaches get Coach only.
type View struct {
	Actor    types.Actor                   `json:"actor"`
	Classes  *Section[[]types.ClassRecord] `json:"classes,omitempty"`
	Payments *Section[Payments]            `json:"payments,omitempty"`
	Coach    *Section[*types.CoachDetail]  `json:"coach,omitempty"`
}

const (
	msgClassesFailed  = "Could not load class history"
	msgPaymentsFailed = "Could not load payment history"
	msgCoachFailed    = "Could not load coach details"
)

type Aggregator struct {
	store    Store
	currency valueobjects.Currency
	log      *zap.SugaredLogger
}

func NewAggregator(store Store, currency valueobjects.Currency) *Aggregator {
	if currency == "" {
		currency = valueobjects.DefaultCurrency
	}
	return &Aggregator{
		store:    store,
		currency: currency,
		log:      logger.GetLogger().Named("profile"),
	}
}

// Load fetches the sections that apply to actor concurrently and waits for all
// of them. It never fails as a whole.
func (a *Aggregator) Load(ctx context.Context, actor types.Actor) *View {
	view := &View{Actor: actor}
	var wg conc.WaitGroup

	if actor.IsCoach() {
		view.Coach = &Section[*types.CoachDetail]{}
		wg.Go(func() {
			a.guard(actor, "coach", &view.Coach.Error, msgCoachFailed, func() { *view.Coach = a.loadCoach(ctx, actor) })
		})
	} else {
		view.Classes = &Section[[]types.ClassRecord]{}
		view.Payments = &Section[Payments]{}
		wg.Go(func() {
			a.guard(actor, "classes", &view.Classes.Error, msgClassesFailed, func() { *view.Classes = a.loadClasses(ctx, actor) })
		})
		wg.Go(func() {
			a.guard(actor, "payments", &view.Payments.Error, msgPaymentsFailed, func() { *view.Payments = a.Payments(ctx, actor) })
		})
	}

	wg.Wait()
	return view
}

// Payments loads, orders and groups the actor's payment history.
func (a *Aggregator) Payments(ctx context.Context, actor types.Actor) Section[Payments] {
	records, err := a.store.PaymentHistory(ctx, actor.Username)
	if err != nil {
		a.log.Warnw("Payment history unavailable", "actor", actor.Key(), "error", err)
		return Section[Payments]{Error: msgPaymentsFailed}
	}

	payments.SortLatestFirst(records)
	grouped := payments.Group(records)

	summary, err := payments.Summarize(grouped, a.currency)
	if err != nil {
		a.log.Errorw("Failed to total payment history", "actor", actor.Key(), "error", err)
		return Section[Payments]{Error: msgPaymentsFailed}
	}

	return Section[Payments]{
		Loaded: true,
		Data:   Payments{Records: grouped, Summary: summary},
	}
}

func (a *Aggregator) loadClasses(ctx context.Context, actor types.Actor) Section[[]types.ClassRecord] {
	classes, err := a.store.ClassHistory(ctx, actor.Username)
	if err != nil {
		a.log.Warnw("Class history unavailable", "actor", actor.Key(), "error", err)
		return Section[[]types.ClassRecord]{Error: msgClassesFailed}
	}
	if classes == nil {
		classes = []types.ClassRecord{}
	}
	return Section[[]types.ClassRecord]{Loaded: true, Data: classes}
}

func (a *Aggregator) loadCoach(ctx context.Context, actor types.Actor) Section[*types.CoachDetail] {
	coach, err := a.store.CoachByID(ctx, actor.ID)
	if err != nil {
		a.log.Warnw("Coach details unavailable", "actor", actor.Key(), "error", err)
		return Section[*types.CoachDetail]{Error: msgCoachFailed}
	}
	return Section[*types.CoachDetail]{Loaded: true, Data: coach}
}

// guard runs load and turns a panic into a section error.
func (a *Aggregator) guard(actor types.Actor, section string, errField *string, msg string, load func()) {
	if recovered := panics.Try(load); recovered != nil {
		a.log.Errorw("Profile section panicked",
			"actor", actor.Key(), "section", section, "panic", recovered.String())
		*errField = msg
	}
}

package workflow

import "projectstream/internal/model"

// Static transition tables per entity kind. Registered once at init; nothing
// mutates these after process start. States are the model enums so the tables
// cannot drift from the entity definitions.

func st[S ~string](s S) State { return State(s) }

var definitions = map[Kind]Definition{
	KindQuote: {
		Kind: KindQuote,
		Transitions: map[State][]State{
			st(model.QuoteDraft):    {st(model.QuoteSent), st(model.QuoteCancelled)},
			st(model.QuoteSent):     {st(model.QuoteAccepted), st(model.QuoteRefused), st(model.QuoteExpired)},
			st(model.QuoteAccepted): {st(model.QuoteConverted)},
			st(model.QuoteRefused):  {st(model.QuoteCancelled)},
			st(model.QuoteExpired):  {st(model.QuoteCancelled)},
		},
	},
	KindInvoice: {
		Kind: KindInvoice,
		Transitions: map[State][]State{
			st(model.InvoiceDraft):   {st(model.InvoiceIssued), st(model.InvoiceCancelled)},
			st(model.InvoiceIssued):  {st(model.InvoicePaid), st(model.InvoiceOverdue), st(model.InvoiceCancelled)},
			st(model.InvoiceOverdue): {st(model.InvoicePaid), st(model.InvoiceCancelled)},
		},
	},
	KindOrder: {
		Kind: KindOrder,
		Transitions: map[State][]State{
			st(model.OrderPending):    {st(model.OrderConfirmed), st(model.OrderCancelled)},
			st(model.OrderConfirmed):  {st(model.OrderProcessing), st(model.OrderCancelled)},
			st(model.OrderProcessing): {st(model.OrderShipped), st(model.OrderOnHold), st(model.OrderCancelled)},
			st(model.OrderOnHold):     {st(model.OrderProcessing), st(model.OrderCancelled)},
			st(model.OrderShipped):    {st(model.OrderDelivered)},
			st(model.OrderDelivered):  {st(model.OrderRefunded)},
		},
	},
	KindMilestone: {
		Kind: KindMilestone,
		Transitions: map[State][]State{
			st(model.MilestonePending):    {st(model.MilestonePlanned), st(model.MilestoneInProgress), st(model.MilestoneCancelled)},
			st(model.MilestonePlanned):    {st(model.MilestoneInProgress), st(model.MilestoneOnHold), st(model.MilestoneCancelled)},
			st(model.MilestoneInProgress): {st(model.MilestoneCompleted), st(model.MilestoneDelayed), st(model.MilestoneOnHold), st(model.MilestoneCancelled)},
			st(model.MilestoneDelayed):    {st(model.MilestoneInProgress), st(model.MilestoneCompleted), st(model.MilestoneCancelled)},
			st(model.MilestoneOnHold):     {st(model.MilestoneInProgress), st(model.MilestoneCancelled)},
		},
	},
	KindProject: {
		Kind: KindProject,
		Transitions: map[State][]State{
			st(model.ProjectDraft):  {st(model.ProjectActive), st(model.ProjectCancelled)},
			st(model.ProjectActive): {st(model.ProjectCompleted), st(model.ProjectOnHold), st(model.ProjectCancelled)},
			st(model.ProjectOnHold): {st(model.ProjectActive), st(model.ProjectCancelled)},
		},
	},
}

// Definitions returns a copy of the registered kinds, mainly for diagnostics.
func Definitions() []Kind {
	kinds := make([]Kind, 0, len(definitions))
	for k := range definitions {
		kinds = append(kinds, k)
	}
	return kinds
}

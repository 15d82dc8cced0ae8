package callview

import "github.com/carefollow/callboard/internal/structs"

// Board is a snapshot of all call records and the patient roster of an
// organisation.
type Board struct {
	Queued        []*structs.QueuedCall
	Active        []*structs.ActiveCall
	Processed     []*structs.ProcessedCall
	Conversations []*structs.Conversation
	Roster        []structs.Patient
}

// Records returns all call records of the board.
func (b Board) Records() []structs.RawCall {
	records := make([]structs.RawCall, 0, len(b.Queued)+len(b.Active)+len(b.Processed)+len(b.Conversations))

	for _, c := range b.Queued {
		records = append(records, c)
	}
	for _, c := range b.Active {
		records = append(records, c)
	}
	for _, c := range b.Processed {
		records = append(records, c)
	}
	for _, c := range b.Conversations {
		records = append(records, c)
	}

	return records
}

// Clone returns a copy of the board whose records can be modified without
// affecting b.
func (b Board) Clone() Board {
	clone := Board{
		Queued:        make([]*structs.QueuedCall, len(b.Queued)),
		Active:        make([]*structs.ActiveCall, len(b.Active)),
		Processed:     make([]*structs.ProcessedCall, len(b.Processed)),
		Conversations: make([]*structs.Conversation, len(b.Conversations)),
		Roster:        append([]structs.Patient(nil), b.Roster...),
	}

	for idx, c := range b.Queued {
		cp := *c
		clone.Queued[idx] = &cp
	}
	for idx, c := range b.Active {
		cp := *c
		clone.Active[idx] = &cp
	}
	for idx, c := range b.Processed {
		cp := *c
		clone.Processed[idx] = &cp
	}
	for idx, c := range b.Conversations {
		cp := *c
		clone.Conversations[idx] = &cp
	}

	return clone
}

// Find returns the record with the given kind and id.
func (b Board) Find(kind structs.Kind, id string) structs.RawCall {
	switch kind {
	case structs.KindQueued:
		for _, c := range b.Queued {
			if c.ID == id {
				return c
			}
		}
	case structs.KindInProgress:
		for _, c := range b.Active {
			if c.ID == id {
				return c
			}
		}
	case structs.KindFailed:
		for _, c := range b.Processed {
			if c.ID == id {
				return c
			}
		}
	case structs.KindProcessed:
		for _, c := range b.Conversations {
			if c.ID == id {
				return c
			}
		}
	}

	return nil
}

// Views normalizes every record of the board.
func (n Normalizer) Views(b Board) []structs.CallView {
	records := b.Records()
	views := make([]structs.CallView, len(records))

	for idx, r := range records {
		views[idx] = n.Normalize(r, b.Roster)
	}

	return views
}

// Build normalizes, filters, groups and sorts the board. If filters is nil,
// every call is selected.
func (n Normalizer) Build(b Board, filters *Filters, lang string) []structs.DateGroup {
	views := n.Views(b)

	f := DefaultFilters(views)
	if filters != nil {
		f = *filters
	}

	return Process(views, f, lang)
}

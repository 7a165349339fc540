package hub

// subscriptionIndex is the reverse mapping from widget id to the set of
// subscribed session ids. Like the registry it is owned exclusively by the
// actor goroutine. An entry with an empty subscriber set never survives a
// mutation: it is deleted the moment its last subscriber leaves.
type subscriptionIndex struct {
	byWidget map[string]map[string]struct{}
}

func newSubscriptionIndex() *subscriptionIndex {
	return &subscriptionIndex{byWidget: make(map[string]map[string]struct{})}
}

func (idx *subscriptionIndex) subscribe(widgetID, sessionID string) {
	set, ok := idx.byWidget[widgetID]
	if !ok {
		set = make(map[string]struct{})
		idx.byWidget[widgetID] = set
	}
	set[sessionID] = struct{}{}
}

func (idx *subscriptionIndex) unsubscribe(widgetID, sessionID string) {
	set, ok := idx.byWidget[widgetID]
	if !ok {
		return
	}
	delete(set, sessionID)
	if len(set) == 0 {
		delete(idx.byWidget, widgetID)
	}
}

// subscribersOf returns a copy of the subscriber set, empty (never nil error)
// for unknown widgets. The copy is the fan-out snapshot: later joins and
// leaves cannot be observed by an iteration already in flight.
func (idx *subscriptionIndex) subscribersOf(widgetID string) []string {
	set := idx.byWidget[widgetID]
	subscribers := make([]string, 0, len(set))
	for sessionID := range set {
		subscribers = append(subscribers, sessionID)
	}
	return subscribers
}

// removeAll drops sessionID from every listed widget entry, collapsing
// entries left empty. Used at session teardown.
func (idx *subscriptionIndex) removeAll(sessionID string, widgetIDs map[string]struct{}) {
	for widgetID := range widgetIDs {
		idx.unsubscribe(widgetID, sessionID)
	}
}

// widgetCount returns the number of widgets with at least one subscriber.
func (idx *subscriptionIndex) widgetCount() int {
	return len(idx.byWidget)
}

// count returns the subscriber count for one widget, zero for unknown widgets.
func (idx *subscriptionIndex) count(widgetID string) int {
	return len(idx.byWidget[widgetID])
}

func (idx *subscriptionIndex) contains(widgetID, sessionID string) bool {
	_, ok := idx.byWidget[widgetID][sessionID]
	return ok
}

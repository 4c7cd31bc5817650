package domain

type SubscriberPreference struct {
	SubscriberID    uint
	Email           string
	MinSignificance Significance
}

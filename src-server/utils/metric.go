package utils

type Metric struct {
	DatabaseRead        chan float64
	DatabaseWrite       chan float64
	OccurrenceExpand    chan float64
	ExpansionTruncation chan struct{}
}

func NewMetric() *Metric {
	return &Metric{
		DatabaseRead:        make(chan float64),
		DatabaseWrite:       make(chan float64),
		OccurrenceExpand:    make(chan float64),
		ExpansionTruncation: make(chan struct{}),
	}
}

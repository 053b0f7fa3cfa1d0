package av

import (
	"github.com/opd-ai/rtcingest/av/audio"
	"github.com/opd-ai/rtcingest/av/rtp"
	"github.com/opd-ai/rtcingest/av/video"
)

// Stats is a snapshot of every stage of a publisher.
type Stats struct {
	Demux     DemuxStats
	Receive   rtp.Statistics
	Buffered  int
	Video     video.Stats
	Audio     audio.Stats
	Tagger    TaggerStats
	Scheduler SchedulerStats

	// PrematureRedundancy counts redundancy packets dropped because the
	// primary stream had not started.
	PrematureRedundancy uint64
}

// Stats collects the counters of every stage.
func (p *Publisher) Stats() Stats {
	s := Stats{
		Demux:               p.demuxer.Stats(),
		Tagger:              p.tagger.Stats(),
		Scheduler:           p.scheduler.Stats(),
		PrematureRedundancy: p.premature,
	}
	if p.receiver != nil {
		s.Receive = p.receiver.Stats()
		s.Buffered = p.receiver.Buffered()
	}
	if p.video != nil {
		s.Video = p.video.Stats()
	}
	if p.audio != nil {
		s.Audio = p.audio.Stats()
	}
	return s
}

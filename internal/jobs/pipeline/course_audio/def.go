package course_audio

import (
	"time"

	"gorm.io/gorm"

	"github.com/yungbote/convolab-backend/internal/data/repos"
	"github.com/yungbote/convolab-backend/internal/modules/course/audio"
	"github.com/yungbote/convolab-backend/internal/platform/logger"
	"github.com/yungbote/convolab-backend/internal/services"
)

type Options struct {
	Speeds         []float64
	Format         audio.Format
	HeartbeatEvery time.Duration
}

type Pipeline struct {
	db        *gorm.DB
	log       *logger.Logger
	courses   repos.CourseRepo
	snapshots repos.StageSnapshotRepo
	orch      *audio.Orchestrator
	store     services.ObjectStore
	opts      Options
}

func New(
	db *gorm.DB,
	baseLog *logger.Logger,
	courses repos.CourseRepo,
	snapshots repos.StageSnapshotRepo,
	orch *audio.Orchestrator,
	store services.ObjectStore,
	opts Options,
) *Pipeline {
	if len(opts.Speeds) == 0 {
		opts.Speeds = []float64{1}
	}
	if opts.Format.IsZero() {
		opts.Format = audio.DefaultFormat
	}
	if opts.HeartbeatEvery <= 0 {
		opts.HeartbeatEvery = 10 * time.Second
	}
	return &Pipeline{
		db:        db,
		log:       baseLog.With("job", services.JobTypeCourseAudio),
		courses:   courses,
		snapshots: snapshots,
		orch:      orch,
		store:     store,
		opts:      opts,
	}
}

func (p *Pipeline) Type() string { return services.JobTypeCourseAudio }

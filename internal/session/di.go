package session

import (
	"github.com/daease/medscribe/internal/audio"
	"github.com/daease/medscribe/internal/config"
	"github.com/daease/medscribe/internal/metrics"
	"github.com/daease/medscribe/internal/report"
	"github.com/daease/medscribe/internal/repository"
	"github.com/daease/medscribe/internal/transcriber"
	"github.com/daease/medscribe/internal/webhook"
	"github.com/samber/do/v2"
)

func RegisterDI(injector do.Injector) {
	do.Provide(injector, func(i do.Injector) (*Manager, error) {
		cfg := do.MustInvoke[*config.Config](i)
		source := do.MustInvoke[audio.Source](i)
		stt := do.MustInvoke[transcriber.Transcriber](i)
		repo := do.MustInvoke[repository.Repository](i)
		reports := do.MustInvoke[*report.Service](i)
		sender := do.MustInvoke[webhook.Sender](i)
		m := do.MustInvoke[*metrics.Metrics](i)
		return NewManager(cfg, source, stt, repo, reports, sender, m), nil
	})
}

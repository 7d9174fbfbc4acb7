package report

import (
	"context"

	"github.com/daease/medscribe/internal/config"
	"github.com/daease/medscribe/internal/metrics"
	"github.com/daease/medscribe/internal/report"
	"github.com/samber/do/v2"
)

func RegisterDI(injector do.Injector) {
	do.Provide(injector, func(i do.Injector) (report.Client, error) {
		c := do.MustInvoke[*config.Config](i)
		return NewGeminiClient(context.Background(), GeminiConfig{
			ProjectID:       c.GoogleCloudProjectID,
			CredentialsJSON: c.GoogleCloudCredentialsJSON,
			Location:        c.ReportLocation,
			Model:           c.ReportModel,
		})
	})
	do.Provide(injector, func(i do.Injector) (*report.Service, error) {
		c := do.MustInvoke[*config.Config](i)
		client := do.MustInvoke[report.Client](i)
		m := do.MustInvoke[*metrics.Metrics](i)
		return report.NewService(report.ServiceConfig{
			MaxRetries: c.ReportMaxRetries,
		}, client, m), nil
	})
}

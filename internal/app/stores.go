package app

import (
	"context"
	"database/sql"

	"github.com/ignite/campaign-engine/internal/domain"
	"github.com/ignite/campaign-engine/internal/repository/memory"
	"github.com/ignite/campaign-engine/internal/repository/postgres"
	"github.com/ignite/campaign-engine/internal/service/campaign"
	"github.com/ignite/campaign-engine/internal/service/sending"
	"github.com/ignite/campaign-engine/internal/service/suppression"
	"github.com/ignite/campaign-engine/internal/tracking"
)

type campaignStore interface {
	campaign.Repository
	ListScheduled(ctx context.Context) ([]domain.Campaign, error)
}

type blastStore interface {
	campaign.BlastStore
	campaign.SendStore
	sending.SendRecorder
	tracking.SendLinkStore
}

type directoryStore interface {
	campaign.UserStore
	campaign.ListStore
	sending.RecipientStore
	sending.Directory
}

// stores groups the persistence backends. Postgres and the in-memory
// store satisfy the same set.
type stores struct {
	campaigns    campaignStore
	blasts       blastStore
	links        tracking.LinkStore
	directory    directoryStore
	suppressions suppression.Repository

	// memory is set only in the in-memory configuration.
	memory *memory.Store
}

func postgresStores(db *sql.DB) stores {
	return stores{
		campaigns:    postgres.NewCampaignRepo(db),
		blasts:       postgres.NewBlastRepo(db),
		links:        postgres.NewShortLinkRepo(db),
		directory:    postgres.NewDirectoryRepo(db),
		suppressions: postgres.NewSuppressionRepo(db),
	}
}

func memoryStores() stores {
	m := memory.New()
	return stores{
		campaigns:    m,
		blasts:       m,
		links:        m,
		directory:    m,
		suppressions: m.Suppressions(),
		memory:       m,
	}
}

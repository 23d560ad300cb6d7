package postgres

import (
	"context"

	"RetailBackOffice/pkg/database"
)

// connProvider выдает соединение для запроса: транзакцию из контекста или пул
type connProvider interface {
	Conn(ctx context.Context) database.Querier
}

// BaseRepository базовая структура для всех репозиториев PostgreSQL.
// Запросы, выполняемые внутри Transactor.RunInTx, автоматически попадают в транзакцию.
type BaseRepository struct {
	db connProvider
}

// NewBaseRepository создает новый экземпляр базового репозитория
func NewBaseRepository(db connProvider) BaseRepository {
	return BaseRepository{db: db}
}

func (r BaseRepository) conn(ctx context.Context) database.Querier {
	return r.db.Conn(ctx)
}

package taskman

import (
	"context"
	"strings"
	"time"

	"github.com/goliatone/go-taskman/repository"
	"github.com/goliatone/hashid/pkg/hashid"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// Users is the user repository
type Users interface {
	repository.Repository[*User, UserCreate, UserUpdate]
	UserStore

	GetByUsernameTx(ctx context.Context, tx bun.IDB, username string) (*User, error)
	RegisterTx(ctx context.Context, tx bun.IDB, data UserCreate) (*User, error)
}

type users struct {
	repository.Repository[*User, UserCreate, UserUpdate]
	db *bun.DB
}

var (
	_ Users     = (*users)(nil)
	_ UserStore = (*users)(nil)
)

// UsersOption customizes the user repository
type UsersOption func(*usersOptions)

type usersOptions struct {
	useHashid bool
	repoOpts  []repository.Option
}

// WithHashidIDs derives user ids from the username instead of
// generating random ones
func WithHashidIDs(enabled bool) UsersOption {
	return func(o *usersOptions) {
		o.useHashid = enabled
	}
}

// WithUsersRepositoryOptions forwards options to the generic repository
func WithUsersRepositoryOptions(opts ...repository.Option) UsersOption {
	return func(o *usersOptions) {
		o.repoOpts = append(o.repoOpts, opts...)
	}
}

// NewUsersRepository creates the user repository
func NewUsersRepository(db *bun.DB, opts ...UsersOption) Users {
	o := &usersOptions{}
	for _, opt := range opts {
		if opt != nil {
			opt(o)
		}
	}

	handlers := repository.ModelHandlers[*User, UserCreate, UserUpdate]{
		Kind:      "User",
		NewRecord: func() *User { return &User{} },
		GetID: func(u *User) uuid.UUID {
			if u == nil {
				return uuid.Nil
			}
			return u.ID
		},
		SetID: func(u *User, id uuid.UUID) {
			if u != nil {
				u.ID = id
			}
		},
		FromCreate:  newUserRecord,
		ApplyUpdate: applyUserUpdate,
		Touch: func(u *User, now time.Time, isNew bool) {
			if isNew {
				u.CreatedAt = now
			}
			u.UpdatedAt = now
		},
	}

	if o.useHashid {
		handlers.NewID = func(u *User) (uuid.UUID, error) {
			return hashid.NewUUID(u.Username)
		}
	}

	return &users{
		Repository: repository.NewRepository(db, handlers, o.repoOpts...),
		db:         db,
	}
}

// GetByID satisfies UserStore
func (a *users) GetByID(ctx context.Context, id uuid.UUID) (*User, error) {
	return a.Repository.Get(ctx, id)
}

// GetByUsername looks a user up by exact username
func (a *users) GetByUsername(ctx context.Context, username string) (*User, error) {
	var user *User
	err := repository.RunInTx(ctx, a.db, func(ctx context.Context, tx bun.Tx) error {
		var err error
		user, err = a.GetByUsernameTx(ctx, tx, username)
		return err
	})
	return user, err
}

func (a *users) GetByUsernameTx(ctx context.Context, tx bun.IDB, username string) (*User, error) {
	username = strings.TrimSpace(username)

	record := &User{}
	err := tx.NewSelect().
		Model(record).
		Where("?TableAlias.username = ?", username).
		Limit(1).
		Scan(ctx)

	if err != nil {
		if repository.IsRecordNotFound(err) {
			nf := repository.NewRecordNotFound("User", username)
			nf.Err = err
			return nil, nf
		}
		return nil, err
	}

	return record, nil
}

// Register persists a new user
func (a *users) Register(ctx context.Context, data UserCreate) (*User, error) {
	var user *User
	err := repository.RunInTx(ctx, a.db, func(ctx context.Context, tx bun.Tx) error {
		var err error
		user, err = a.RegisterTx(ctx, tx, data)
		return err
	})
	return user, err
}

func (a *users) RegisterTx(ctx context.Context, tx bun.IDB, data UserCreate) (*User, error) {
	data.Username = strings.TrimSpace(data.Username)
	return a.Repository.CreateTx(ctx, tx, data)
}

package repository

import (
	"context"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
	goerrors "github.com/goliatone/go-errors"
	repository "github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/nyaruka/phonenumbers"
	"github.com/pestline/go-auth"
	"github.com/pestline/go-auth/sessionstore"
	"github.com/uptrace/bun"
)

// DefaultPhoneRegion is used to parse phone numbers written without a
// country prefix.
const DefaultPhoneRegion = "US"

// ProfileModel is the Bun model for the profiles table.
type ProfileModel struct {
	bun.BaseModel `bun:"table:profiles,alias:prf"`

	ID           uuid.UUID `bun:"id,pk,nullzero,type:uuid"`
	Email        string    `bun:"email,notnull,unique"`
	Name         string    `bun:"name"`
	Role         string    `bun:"role,notnull"`
	IsApproved   bool      `bun:"is_approved,notnull"`
	Phone        string    `bun:"phone"`
	PasswordHash string    `bun:"password_hash"`
	CreatedAt    time.Time `bun:"created_at,notnull"`
	UpdatedAt    time.Time `bun:"updated_at,notnull"`
}

// NewProfile is the input accepted by Profiles.Create.
type NewProfile struct {
	Email      string
	Name       string
	Role       string
	Phone      string
	Password   string
	IsApproved bool
}

// Validate checks the fields before they reach the database.
func (p NewProfile) Validate() error {
	return validation.ValidateStruct(&p,
		validation.Field(&p.Email, validation.Required, validation.Length(6, 100), is.Email),
		validation.Field(&p.Name, validation.Length(0, 200)),
		validation.Field(&p.Role, validation.In(auth.RoleAdmin, auth.RoleUser)),
		validation.Field(&p.Password, validation.Length(8, 100)),
	)
}

// ProfilesOption customizes Profiles.
type ProfilesOption func(*Profiles)

// WithPhoneRegion sets the region used to normalize phone numbers.
func WithPhoneRegion(region string) ProfilesOption {
	return func(p *Profiles) {
		if region != "" {
			p.region = strings.ToUpper(region)
		}
	}
}

// WithProfilesClock sets the time source for timestamps.
func WithProfilesClock(now func() time.Time) ProfilesOption {
	return func(p *Profiles) {
		if now != nil {
			p.now = now
		}
	}
}

// Profiles is the profile table. It serves the profile resolver and password
// sign-in.
type Profiles struct {
	repository.Repository[*ProfileModel]
	db     *bun.DB
	region string
	now    func() time.Time
}

var (
	_ auth.ProfileFinder         = (*Profiles)(nil)
	_ sessionstore.AccountFinder = (*Profiles)(nil)
)

// NewProfiles returns the profile repository.
func NewProfiles(db *bun.DB, opts ...ProfilesOption) *Profiles {
	repo := repository.NewRepository[*ProfileModel](db, repository.ModelHandlers[*ProfileModel]{
		NewRecord: func() *ProfileModel { return &ProfileModel{} },
		GetID: func(m *ProfileModel) uuid.UUID {
			if m == nil {
				return uuid.Nil
			}
			return m.ID
		},
		SetID: func(m *ProfileModel, id uuid.UUID) {
			if m != nil {
				m.ID = id
			}
		},
		GetIdentifier: func() string {
			return "email"
		},
	})

	p := &Profiles{
		Repository: repo,
		db:         db,
		region:     DefaultPhoneRegion,
		now:        time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(p)
		}
	}
	return p
}

// FindByEmail returns the row for email.
func (p *Profiles) FindByEmail(ctx context.Context, email string) (*ProfileModel, error) {
	email = auth.NormalizeEmail(email)
	record, err := p.Repository.GetByIdentifier(ctx, email)
	if err != nil {
		if repository.IsRecordNotFound(err) {
			return nil, auth.NewError(auth.KindNotFound, "find profile", auth.ErrProfileNotFound)
		}
		return nil, err
	}
	return record, nil
}

// FindProfileByEmail implements auth.ProfileFinder.
func (p *Profiles) FindProfileByEmail(ctx context.Context, email string) (*auth.Profile, error) {
	record, err := p.FindByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	return record.toProfile(), nil
}

// FindAccountByEmail implements sessionstore.AccountFinder.
func (p *Profiles) FindAccountByEmail(ctx context.Context, email string) (*sessionstore.Account, error) {
	record, err := p.FindByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	return &sessionstore.Account{
		ID:           record.ID.String(),
		Email:        record.Email,
		Name:         record.Name,
		PasswordHash: record.PasswordHash,
	}, nil
}

// Create validates and inserts a profile. Blank roles become the default
// role, the phone is stored in E.164 and the password is bcrypt hashed.
func (p *Profiles) Create(ctx context.Context, in NewProfile) (*ProfileModel, error) {
	in.Email = auth.NormalizeEmail(in.Email)
	in.Role = strings.ToLower(strings.TrimSpace(in.Role))
	if err := in.Validate(); err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryValidation, "invalid profile")
	}

	phone, err := NormalizePhone(in.Phone, p.region)
	if err != nil {
		return nil, err
	}

	role := in.Role
	if role == "" {
		role = auth.PrimaryRole(auth.DefaultRoles())
	}

	var hash string
	if in.Password != "" {
		if hash, err = auth.HashPassword(in.Password); err != nil {
			return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to hash password")
		}
	}

	now := p.now().UTC()
	record := &ProfileModel{
		ID:           uuid.New(),
		Email:        in.Email,
		Name:         strings.TrimSpace(in.Name),
		Role:         role,
		IsApproved:   in.IsApproved,
		Phone:        phone,
		PasswordHash: hash,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if _, err := p.db.NewInsert().Model(record).Exec(ctx); err != nil {
		if isUniqueViolation(err) {
			return nil, goerrors.Wrap(err, goerrors.CategoryConflict, "profile already exists").
				WithCode(goerrors.CodeConflict).
				WithMetadata(map[string]any{"email": in.Email})
		}
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to create profile")
	}

	return record, nil
}

// SetApproval flips the approval flag of the profile with email.
func (p *Profiles) SetApproval(ctx context.Context, email string, approved bool) error {
	return p.updateColumn(ctx, email, "is_approved", approved)
}

// SetRole replaces the role of the profile with email.
func (p *Profiles) SetRole(ctx context.Context, email, role string) error {
	role = strings.ToLower(strings.TrimSpace(role))
	if err := validation.Validate(role, validation.Required, validation.In(auth.RoleAdmin, auth.RoleUser)); err != nil {
		return goerrors.Wrap(err, goerrors.CategoryBadInput, "invalid role")
	}
	return p.updateColumn(ctx, email, "role", role)
}

// List returns every profile ordered by email.
func (p *Profiles) List(ctx context.Context) ([]*ProfileModel, error) {
	var records []*ProfileModel
	err := p.db.NewSelect().
		Model(&records).
		OrderExpr("?TableAlias.email ASC").
		Scan(ctx)
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to list profiles")
	}
	return records, nil
}

func (p *Profiles) updateColumn(ctx context.Context, email, column string, value any) error {
	email = auth.NormalizeEmail(email)
	res, err := p.db.NewUpdate().
		Model((*ProfileModel)(nil)).
		Set("? = ?", bun.Ident(column), value).
		Set("updated_at = ?", p.now().UTC()).
		Where("email = ?", email).
		Exec(ctx)
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to update profile")
	}

	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return goerrors.Wrap(repository.ErrRecordNotFound, goerrors.CategoryNotFound, "profile not found").
			WithCode(goerrors.CodeNotFound).
			WithMetadata(map[string]any{
				"email": email,
			})
	}
	return nil
}

func (m *ProfileModel) toProfile() *auth.Profile {
	return &auth.Profile{
		ID:         m.ID.String(),
		Email:      m.Email,
		Name:       m.Name,
		Role:       m.Role,
		IsApproved: m.IsApproved,
	}
}

// NormalizePhone parses phone for region and formats it as E.164. An empty
// phone is returned unchanged.
func NormalizePhone(phone, region string) (string, error) {
	phone = strings.TrimSpace(phone)
	if phone == "" {
		return "", nil
	}

	num, err := phonenumbers.Parse(phone, region)
	if err != nil {
		return "", goerrors.Wrap(err, goerrors.CategoryValidation, "invalid phone number").
			WithMetadata(map[string]any{"phone": phone})
	}
	if !phonenumbers.IsValidNumber(num) {
		return "", goerrors.New("invalid phone number", goerrors.CategoryValidation).
			WithMetadata(map[string]any{"phone": phone})
	}
	return phonenumbers.Format(num, phonenumbers.E164), nil
}

func isUniqueViolation(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unique") || strings.Contains(msg, "duplicate key")
}

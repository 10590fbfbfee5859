package signup

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"
	"go.uber.org/zap"

	"parkspot-backend/internal/apperr"
	"parkspot-backend/internal/backend"
)

// DefaultTTL is how long an untouched wizard is kept.
const DefaultTTL = 15 * time.Minute

// Store holds wizards in an expiring in-memory cache and runs their
// transitions against the backend registrar. A transition is applied only
// after the backend call it depends on has succeeded.
type Store struct {
	registrar backend.Registrar
	wizards   *cache.Cache
	ttl       time.Duration
	now       func() time.Time
	log       *zap.Logger

	mu sync.Mutex
}

// NewStore creates a wizard store. A non-positive ttl means DefaultTTL.
// Expired wizards are evicted by the cache's own janitor.
func NewStore(registrar backend.Registrar, ttl time.Duration, logger *zap.Logger) *Store {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Store{
		registrar: registrar,
		wizards:   cache.New(ttl, 2*ttl),
		ttl:       ttl,
		now:       time.Now,
		log:       logger,
	}
}

// Begin opens a wizard at PhoneEntry.
func (s *Store) Begin() Wizard {
	w := Wizard{ID: uuid.NewString(), Step: StepPhoneEntry, CreatedAt: s.now()}
	s.wizards.Set(w.ID, w, s.ttl)
	return w
}

// Get returns the wizard with id.
func (s *Store) Get(id string) (Wizard, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.getLocked(id)
}

// SubmitPhone sends a verification code to phone and moves to
// CodeVerification.
func (s *Store) SubmitPhone(ctx context.Context, id, phone string) (Wizard, error) {
	w, err := s.Get(id)
	if err != nil {
		return Wizard{}, err
	}
	if err := w.expect(StepPhoneEntry); err != nil {
		return w, err
	}
	phone, err = NormalizePhone(phone)
	if err != nil {
		return w, err
	}

	if err := s.registrar.RequestCode(ctx, phone); err != nil {
		s.log.Info("verification code request failed", zap.String("wizard_id", id), zap.Error(err))
		return w, err
	}
	return s.apply(id, StepPhoneEntry, func(w *Wizard) { w.codeSent(phone, s.now()) })
}

// SubmitCode verifies code for the wizard's phone and moves to
// ProfileDetails.
func (s *Store) SubmitCode(ctx context.Context, id, code string) (Wizard, error) {
	w, err := s.Get(id)
	if err != nil {
		return Wizard{}, err
	}
	if err := w.expect(StepCodeVerification); err != nil {
		return w, err
	}
	code, err = ValidateCode(code)
	if err != nil {
		return w, err
	}

	token, err := s.registrar.VerifyCode(ctx, w.Phone, code)
	if err != nil {
		return w, err
	}
	return s.apply(id, StepCodeVerification, func(w *Wizard) { w.verified(token) })
}

// SubmitProfile registers the account and completes the wizard.
func (s *Store) SubmitProfile(ctx context.Context, id string, p Profile) (Wizard, error) {
	w, err := s.Get(id)
	if err != nil {
		return Wizard{}, err
	}
	if err := w.expect(StepProfileDetails); err != nil {
		return w, err
	}
	p, err = p.Validate()
	if err != nil {
		return w, err
	}

	account, err := s.registrar.Register(ctx, backend.RegisterRequest{
		VerificationToken: w.VerificationToken,
		Phone:             w.Phone,
		Username:          p.Username,
		Password:          p.Password,
		VehiclePlate:      p.VehiclePlate,
	})
	if err != nil {
		return w, err
	}
	s.log.Info("account registered", zap.String("wizard_id", id), zap.String("username", account.Username))
	return s.apply(id, StepProfileDetails, func(w *Wizard) { w.completed(account) })
}

// Back moves the wizard one step towards PhoneEntry.
func (s *Store) Back(id string) (Wizard, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	w, err := s.getLocked(id)
	if err != nil {
		return Wizard{}, err
	}
	if err := w.back(); err != nil {
		return w, err
	}
	s.wizards.Set(id, w, s.ttl)
	return w, nil
}

// apply runs fn if the wizard is still at from. A wizard that moved while
// the backend call was in flight is left alone.
func (s *Store) apply(id string, from Step, fn func(*Wizard)) (Wizard, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	w, err := s.getLocked(id)
	if err != nil {
		return Wizard{}, err
	}
	if err := w.expect(from); err != nil {
		return w, err
	}
	fn(&w)
	s.wizards.Set(id, w, s.ttl)
	return w, nil
}

func (s *Store) getLocked(id string) (Wizard, error) {
	v, ok := s.wizards.Get(id)
	if !ok {
		return Wizard{}, apperr.ErrNotFound.WithMessage("signup session not found or expired")
	}
	return v.(Wizard), nil
}

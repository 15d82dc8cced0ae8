package services

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"slices"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/carefollow/callboard/internal/auth"
	"github.com/carefollow/callboard/internal/backend"
	"github.com/carefollow/callboard/internal/callview"
	"github.com/carefollow/callboard/internal/config"
	"github.com/carefollow/callboard/internal/database"
	"github.com/carefollow/callboard/internal/live"
	"github.com/carefollow/callboard/internal/mutation"
	"github.com/carefollow/callboard/internal/structs"
	"go.mongodb.org/mongo-driver/bson"
)

const testOrg = "org-1"

// memCalls is an in-memory CallDatabase.
type memCalls struct {
	mu      sync.Mutex
	records map[structs.Kind]map[string]structs.RawCall

	failSetViewed error
	failGet       error
	// ranges holds the filters of ranged board loads.
	ranges []bson.M
}

func newMemCalls() *memCalls {
	return &memCalls{
		records: map[structs.Kind]map[string]structs.RawCall{
			structs.KindQueued:     {},
			structs.KindInProgress: {},
			structs.KindFailed:     {},
			structs.KindProcessed:  {},
		},
	}
}

func (m *memCalls) put(r structs.RawCall) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.records[r.Kind()][r.RecordID()] = r

	return nil
}

func (m *memCalls) UpsertQueued(ctx context.Context, call *structs.QueuedCall) error {
	return m.put(call)
}

func (m *memCalls) UpsertActive(ctx context.Context, call *structs.ActiveCall) error {
	return m.put(call)
}

func (m *memCalls) UpsertProcessed(ctx context.Context, call *structs.ProcessedCall) error {
	return m.put(call)
}

func (m *memCalls) UpsertConversation(ctx context.Context, call *structs.Conversation) error {
	return m.put(call)
}

func (m *memCalls) remove(kind structs.Kind, orgID, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.failGet != nil {
		return m.failGet
	}

	r, ok := m.records[kind][id]
	if !ok || r.Organisation() != orgID {
		return database.ErrNotFound
	}

	delete(m.records[kind], id)

	return nil
}

func (m *memCalls) DeleteQueued(ctx context.Context, orgID, id string) error {
	return m.remove(structs.KindQueued, orgID, id)
}

func (m *memCalls) DeleteActive(ctx context.Context, orgID, id string) error {
	return m.remove(structs.KindInProgress, orgID, id)
}

func (m *memCalls) Get(ctx context.Context, orgID string, kind structs.Kind, id string) (structs.RawCall, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.failGet != nil {
		return nil, m.failGet
	}

	r, ok := m.records[kind][id]
	if !ok || r.Organisation() != orgID {
		return nil, database.ErrNotFound
	}

	return r, nil
}

func (m *memCalls) GetConversation(ctx context.Context, orgID, id string) (*structs.Conversation, error) {
	r, err := m.Get(ctx, orgID, structs.KindProcessed, id)
	if err != nil {
		return nil, err
	}

	return r.(*structs.Conversation), nil
}

func (m *memCalls) sorted(kind structs.Kind, orgID string) []structs.RawCall {
	var result []structs.RawCall
	for _, r := range m.records[kind] {
		if r.Organisation() == orgID {
			result = append(result, r)
		}
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].RecordID() < result[j].RecordID()
	})

	return result
}

func (m *memCalls) LoadBoard(ctx context.Context, orgID string, query *database.SearchQuery) (callview.Board, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if query != nil {
		m.ranges = append(m.ranges, query.Build(orgID))
	}

	var b callview.Board
	for _, r := range m.sorted(structs.KindQueued, orgID) {
		cp := *r.(*structs.QueuedCall)
		b.Queued = append(b.Queued, &cp)
	}
	for _, r := range m.sorted(structs.KindInProgress, orgID) {
		cp := *r.(*structs.ActiveCall)
		b.Active = append(b.Active, &cp)
	}
	for _, r := range m.sorted(structs.KindFailed, orgID) {
		cp := *r.(*structs.ProcessedCall)
		b.Processed = append(b.Processed, &cp)
	}
	for _, r := range m.sorted(structs.KindProcessed, orgID) {
		cp := *r.(*structs.Conversation)
		b.Conversations = append(b.Conversations, &cp)
	}

	return b, nil
}

func (m *memCalls) SetViewed(ctx context.Context, orgID string, kind structs.Kind, id string, viewed bool) (bool, error) {
	if m.failSetViewed != nil {
		return false, m.failSetViewed
	}

	r, err := m.Get(ctx, orgID, kind, id)
	if err != nil {
		return false, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	prev, ok := setViewed(r, viewed)
	if !ok {
		return false, errors.New("record has no viewed flag")
	}

	return prev, nil
}

func (m *memCalls) Search(ctx context.Context, orgID string, kind structs.Kind, query *database.SearchQuery) ([]structs.RawCall, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.sorted(kind, orgID), nil
}

func (m *memCalls) StreamSearch(ctx context.Context, orgID string, kind structs.Kind, query *database.SearchQuery) (<-chan structs.RawCall, <-chan error) {
	records, _ := m.Search(ctx, orgID, kind, query)

	ch := make(chan structs.RawCall, len(records))
	errs := make(chan error)

	for _, r := range records {
		ch <- r
	}
	close(ch)
	close(errs)

	return ch, errs
}

func (m *memCalls) outcomes(orgID string) []*structs.Outcome {
	var result []*structs.Outcome
	for _, r := range m.sorted(structs.KindFailed, orgID) {
		result = append(result, &r.(*structs.ProcessedCall).Outcome)
	}
	for _, r := range m.sorted(structs.KindProcessed, orgID) {
		result = append(result, &r.(*structs.Conversation).Outcome)
	}

	return result
}

func (m *memCalls) FindUnmatchedNumbers(ctx context.Context, orgID string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var numbers []string
	for _, o := range m.outcomes(orgID) {
		if o.PatientID == "" && o.PhoneNumber != "" && !slices.Contains(numbers, o.PhoneNumber) {
			numbers = append(numbers, o.PhoneNumber)
		}
	}

	return numbers, nil
}

func (m *memCalls) UpdateUnmatchedNumber(ctx context.Context, orgID, number, patientID string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var count int64
	for _, o := range m.outcomes(orgID) {
		if o.PatientID == "" && o.PhoneNumber == number {
			o.PatientID = patientID
			count++
		}
	}

	return count, nil
}

// memPatients is an in-memory PatientDatabase.
type memPatients struct {
	mu       sync.Mutex
	patients []structs.Patient
}

func (m *memPatients) ListPatients(ctx context.Context, orgID string) ([]structs.Patient, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var result []structs.Patient
	for _, p := range m.patients {
		if p.OrganisationID == orgID {
			result = append(result, p)
		}
	}

	return result, nil
}

func (m *memPatients) GetPatient(ctx context.Context, orgID, id string) (*structs.Patient, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, p := range m.patients {
		if p.OrganisationID == orgID && p.ID == id {
			return &p, nil
		}
	}

	return nil, database.ErrNotFound
}

func (m *memPatients) CreatePatient(ctx context.Context, patient *structs.Patient) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.patients = append(m.patients, *patient)

	return nil
}

func (m *memPatients) UpdatePatient(ctx context.Context, patient *structs.Patient) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for idx, p := range m.patients {
		if p.OrganisationID == patient.OrganisationID && p.ID == patient.ID {
			m.patients[idx] = *patient

			return nil
		}
	}

	return database.ErrNotFound
}

func (m *memPatients) DeletePatient(ctx context.Context, orgID, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	idx := slices.IndexFunc(m.patients, func(p structs.Patient) bool {
		return p.OrganisationID == orgID && p.ID == id
	})
	if idx < 0 {
		return database.ErrNotFound
	}

	m.patients = slices.Delete(m.patients, idx, idx+1)

	return nil
}

func (m *memPatients) BulkUpsert(ctx context.Context, orgID string, patients []structs.Patient) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, p := range patients {
		p.OrganisationID = orgID
		m.patients = append(m.patients, p)
	}

	return int64(len(patients)), nil
}

// memOrganisations is an in-memory OrganisationDatabase.
type memOrganisations struct {
	mu   sync.Mutex
	orgs map[string]structs.Organisation
}

func (m *memOrganisations) CreateOrganisation(ctx context.Context, org *structs.Organisation) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.orgs[org.ID]; ok {
		return database.ErrAlreadyExists
	}
	m.orgs[org.ID] = *org

	return nil
}

func (m *memOrganisations) GetOrganisation(ctx context.Context, id string) (*structs.Organisation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	org, ok := m.orgs[id]
	if !ok {
		return nil, database.ErrNotFound
	}

	return &org, nil
}

func (m *memOrganisations) UpdateOrganisation(ctx context.Context, org *structs.Organisation) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.orgs[org.ID]; !ok {
		return database.ErrNotFound
	}
	m.orgs[org.ID] = *org

	return nil
}

func (m *memOrganisations) ListOrganisations(ctx context.Context) ([]structs.Organisation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var result []structs.Organisation
	for _, org := range m.orgs {
		result = append(result, org)
	}

	return result, nil
}

// memPresets is an in-memory PresetDatabase.
type memPresets struct {
	mu      sync.Mutex
	presets []structs.Preset
	trees   []structs.TreePreset
}

func (m *memPresets) ListPresets(ctx context.Context, orgID string) ([]structs.Preset, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var result []structs.Preset
	for _, p := range m.presets {
		if p.OrganisationID == orgID {
			result = append(result, p)
		}
	}

	return result, nil
}

func (m *memPresets) SavePreset(ctx context.Context, preset *structs.Preset) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.presets = append(m.presets, *preset)

	return nil
}

func (m *memPresets) DeletePreset(ctx context.Context, orgID, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	before := len(m.presets)
	m.presets = slices.DeleteFunc(m.presets, func(p structs.Preset) bool {
		return p.OrganisationID == orgID && p.ID == id
	})

	if len(m.presets) == before {
		return database.ErrNotFound
	}

	return nil
}

func (m *memPresets) ListTreePresets(ctx context.Context, orgID string) ([]structs.TreePreset, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var result []structs.TreePreset
	for _, p := range m.trees {
		if p.OrganisationID == orgID {
			result = append(result, p)
		}
	}

	return result, nil
}

func (m *memPresets) SaveTreePreset(ctx context.Context, preset *structs.TreePreset) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.trees = append(m.trees, *preset)

	return nil
}

func (m *memPresets) DeleteTreePreset(ctx context.Context, orgID, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	before := len(m.trees)
	m.trees = slices.DeleteFunc(m.trees, func(p structs.TreePreset) bool {
		return p.OrganisationID == orgID && p.ID == id
	})

	if len(m.trees) == before {
		return database.ErrNotFound
	}

	return nil
}

// fakeBackend records the requests sent to the call backend.
type fakeBackend struct {
	mu       sync.Mutex
	requests map[string][]map[string]any

	// responses maps an endpoint to the status code and body returned for
	// it. Unknown endpoints report success.
	responses map[string]fakeResponse
}

type fakeResponse struct {
	code int
	body string
}

func (f *fakeBackend) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	endpoint := strings.TrimPrefix(req.URL.Path, "/customer_app_api/")

	var payload map[string]any
	_ = json.NewDecoder(req.Body).Decode(&payload)

	f.mu.Lock()
	f.requests[endpoint] = append(f.requests[endpoint], payload)
	res, ok := f.responses[endpoint]
	f.mu.Unlock()

	if !ok {
		res = fakeResponse{code: http.StatusOK, body: `{"message": "success"}`}
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(res.code)
	_, _ = w.Write([]byte(res.body))
}

func (f *fakeBackend) calls(endpoint string) []map[string]any {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.requests[endpoint]
}

type testEnv struct {
	providers *config.Providers
	calls     *memCalls
	patients  *memPatients
	presets   *memPresets
	orgs      *memOrganisations
	backend   *fakeBackend
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	env := &testEnv{
		calls:    newMemCalls(),
		patients: &memPatients{},
		presets:  &memPresets{},
		orgs: &memOrganisations{
			orgs: map[string]structs.Organisation{
				testOrg: {ID: testOrg, Name: "Clinic", Country: "AT", Language: "en"},
			},
		},
		backend: &fakeBackend{
			requests:  make(map[string][]map[string]any),
			responses: make(map[string]fakeResponse),
		},
	}

	srv := httptest.NewServer(env.backend)
	t.Cleanup(srv.Close)

	env.providers = &config.Providers{
		Calls:         env.calls,
		Patients:      env.patients,
		Presets:       env.presets,
		Organisations: env.orgs,
		Backend:       backend.New(srv.URL, "secret", 0),
		Hub:           live.NewHub(env.calls, env.patients, live.NewLocalNotifier()),
		Mutations:     mutation.NewRunner(),
		Location:      time.UTC,
		Config: config.Config{
			Country:               "AT",
			DefaultLanguage:       "en",
			IngestToken:           "ingest-token",
			InboundLivenessWindow: config.Duration(8 * time.Minute),
		},
	}

	return env
}

func userContext(orgID string) context.Context {
	return auth.WithUser(context.Background(), auth.User{
		ID:             "user-1",
		OrganisationID: orgID,
	})
}

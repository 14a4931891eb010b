package donorsvc

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	donorstore "github.com/dalemusser/donorhub/internal/app/store/donors"
	"github.com/dalemusser/donorhub/internal/app/system/querycache"
	"github.com/dalemusser/donorhub/internal/domain/models"
	"github.com/dalemusser/waffle/pantry/storage"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

const actor = "uid-staff-1"

// countingStore wraps MemStore and counts calls, so tests can assert that
// a rejected operation never reached the store.
type countingStore struct {
	*donorstore.MemStore
	calls     atomic.Int32
	lists     atomic.Int32
	vanishing bool
}

func (c *countingStore) Insert(ctx context.Context, d models.Donor) (models.Donor, error) {
	c.calls.Add(1)
	return c.MemStore.Insert(ctx, d)
}

func (c *countingStore) EmailTaken(ctx context.Context, email string, exclude primitive.ObjectID) (bool, error) {
	c.calls.Add(1)
	return c.MemStore.EmailTaken(ctx, email, exclude)
}

func (c *countingStore) GetByID(ctx context.Context, id primitive.ObjectID) (models.Donor, error) {
	c.calls.Add(1)
	return c.MemStore.GetByID(ctx, id)
}

func (c *countingStore) SetActive(ctx context.Context, id primitive.ObjectID, active bool, st donorstore.Stamp) error {
	c.calls.Add(1)
	return c.MemStore.SetActive(ctx, id, active, st)
}

func (c *countingStore) List(ctx context.Context, activeOnly bool) ([]models.Donor, error) {
	c.lists.Add(1)
	return c.MemStore.List(ctx, activeOnly)
}

// Update deletes the record right after writing it when vanishing is set.
func (c *countingStore) Update(ctx context.Context, id primitive.ObjectID, p models.DonorPatch, st donorstore.Stamp) error {
	c.calls.Add(1)
	if err := c.MemStore.Update(ctx, id, p, st); err != nil {
		return err
	}
	if c.vanishing {
		return c.MemStore.Delete(ctx, id)
	}
	return nil
}

type fixture struct {
	svc   *Service
	store *countingStore
	files *storage.Local
	now   time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := &countingStore{MemStore: donorstore.NewMemStore()}
	cache := querycache.New(querycache.NewLRU(256, time.Minute), time.Minute, nil)
	files, err := storage.NewLocal(storage.LocalConfig{BasePath: t.TempDir(), BaseURL: "/files"})
	if err != nil {
		t.Fatal(err)
	}
	f := &fixture{store: store, files: files, now: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
	f.svc = New(store, cache, files, nil)
	f.svc.SetClock(func() time.Time {
		f.now = f.now.Add(time.Second)
		return f.now
	})
	return f
}

func (f *fixture) objectPath(t *testing.T, key string) string {
	t.Helper()
	p, err := f.files.GetFullPath(key)
	if err != nil {
		t.Fatalf("GetFullPath(%q): %v", key, err)
	}
	return p
}

func ahmedForm() models.DonorForm {
	return models.DonorForm{
		FullName:                 "Ahmed Benali",
		Email:                    "a@x.com",
		PhoneNumber:              "+212 6 12 34 56 78",
		Address:                  "12 Rue Atlas, Rabat",
		DonorType:                models.DonorTypeGeneral,
		CommunicationPreferences: []models.CommunicationPreference{models.PrefEmail},
	}
}

func formFor(name, email string) models.DonorForm {
	f := ahmedForm()
	f.FullName, f.Email = name, email
	return f
}

func ptr[T any](v T) *T { return &v }

func ids(ds []models.Donor) []string {
	out := make([]string, len(ds))
	for i, d := range ds {
		out[i] = d.ID.Hex()
	}
	return out
}

func containsID(ds []models.Donor, id primitive.ObjectID) (models.Donor, bool) {
	for _, d := range ds {
		if d.ID == id {
			return d, true
		}
	}
	return models.Donor{}, false
}

func TestCreate_StampsAndNormalizes(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	form := ahmedForm()
	form.FullName = "  Ahmed   Benali "
	form.Notes = "<b>Prefers</b> calls after 6pm"
	form.CommunicationPreferences = []models.CommunicationPreference{"EMAIL", "sms", "email"}

	d, err := f.svc.Create(ctx, form, actor)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if d.ID.IsZero() {
		t.Fatal("expected generated id")
	}
	if !d.IsActive || d.CreatedBy != actor || d.CreatedAt.IsZero() {
		t.Errorf("stamps = active:%v by:%q at:%v", d.IsActive, d.CreatedBy, d.CreatedAt)
	}
	if d.UpdatedAt == nil || !d.UpdatedAt.Equal(d.CreatedAt) {
		t.Errorf("updated_at = %v, want created_at", d.UpdatedAt)
	}
	if d.FullName != "Ahmed Benali" {
		t.Errorf("full name = %q", d.FullName)
	}
	if d.PhoneNumber != "+212612345678" {
		t.Errorf("phone = %q", d.PhoneNumber)
	}
	if d.Notes != "Prefers calls after 6pm" {
		t.Errorf("notes = %q", d.Notes)
	}
	if got := fmt.Sprint(d.CommunicationPreferences); got != "[email sms]" {
		t.Errorf("preferences = %s", got)
	}

	got, err := f.svc.Get(ctx, d.ID.Hex())
	if err != nil || got == nil {
		t.Fatalf("Get = %v, %v", got, err)
	}
	if got.Email != "a@x.com" || got.Address != form.Address || got.DonorType != models.DonorTypeGeneral {
		t.Errorf("Get returned %+v", got)
	}
}

func TestCreate_Validation(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.Create(context.Background(), models.DonorForm{
		Email:                    "not-an-email",
		PhoneNumber:              "123",
		DonorType:                "corporate",
		CommunicationPreferences: nil,
	}, actor)

	var ve *ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("err = %v, want ValidationError", err)
	}
	for _, field := range []string{FieldFullName, FieldEmail, FieldPhoneNumber, FieldAddress, FieldDonorType, FieldPreferences} {
		if ve.Fields[field] == "" {
			t.Errorf("missing message for %s", field)
		}
	}
	if _, ok := ve.Fields[FieldNotes]; ok {
		t.Error("notes are optional")
	}
	if n := f.store.calls.Load(); n != 0 {
		t.Errorf("store calls = %d, want 0", n)
	}
}

func TestMutations_RequireActor(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := primitive.NewObjectID().Hex()

	checks := map[string]error{}
	_, checks["create"] = f.svc.Create(ctx, ahmedForm(), "")
	_, checks["update"] = f.svc.Update(ctx, id, models.DonorPatch{FullName: ptr("X")}, "")
	checks["deactivate"] = f.svc.Deactivate(ctx, id, "")
	checks["reactivate"] = f.svc.Reactivate(ctx, id, "")
	checks["delete"] = f.svc.Delete(ctx, id, "")
	_, checks["attach"] = f.svc.AttachDocument(ctx, id, Upload{Name: "a.txt", Body: strings.NewReader("x")}, "")
	checks["remove document"] = f.svc.RemoveDocument(ctx, id, "doc", "")

	for op, err := range checks {
		if !errors.Is(err, ErrUnauthenticated) {
			t.Errorf("%s: err = %v, want ErrUnauthenticated", op, err)
		}
	}
	if n := f.store.calls.Load(); n != 0 {
		t.Errorf("store calls = %d, want 0", n)
	}
}

func TestCreate_DuplicateEmail(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if _, err := f.svc.Create(ctx, ahmedForm(), actor); err != nil {
		t.Fatal(err)
	}
	for _, email := range []string{"a@x.com", "A@X.COM", " a@x.com "} {
		_, err := f.svc.Create(ctx, formFor("Someone Else", email), actor)
		if !errors.Is(err, ErrDuplicateEmail) {
			t.Errorf("Create(%q) err = %v, want ErrDuplicateEmail", email, err)
		}
	}
	all, _ := f.svc.List(ctx, false)
	if len(all) != 1 {
		t.Errorf("donor count = %d, want 1", len(all))
	}
}

func TestUpdate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	a, _ := f.svc.Create(ctx, ahmedForm(), actor)
	b, _ := f.svc.Create(ctx, formFor("Sara Idrissi", "sara@x.com"), actor)

	t.Run("partial patch", func(t *testing.T) {
		d, err := f.svc.Update(ctx, a.ID.Hex(), models.DonorPatch{
			Address:   ptr("5 Avenue Hassan II, Casablanca"),
			DonorType: ptr(models.DonorTypeSponsorship),
		}, "uid-editor")
		if err != nil {
			t.Fatalf("Update: %v", err)
		}
		if d.Address != "5 Avenue Hassan II, Casablanca" || d.DonorType != models.DonorTypeSponsorship {
			t.Errorf("patched fields not applied: %+v", d)
		}
		if d.FullName != "Ahmed Benali" || d.Email != "a@x.com" {
			t.Errorf("untouched fields changed: %+v", d)
		}
		if d.UpdatedBy != "uid-editor" || d.UpdatedAt == nil || !d.UpdatedAt.After(d.CreatedAt) {
			t.Errorf("update stamp = %q %v", d.UpdatedBy, d.UpdatedAt)
		}
		if d.CreatedBy != actor {
			t.Errorf("created_by changed to %q", d.CreatedBy)
		}
	})

	t.Run("own email is allowed", func(t *testing.T) {
		if _, err := f.svc.Update(ctx, a.ID.Hex(), models.DonorPatch{Email: ptr("A@x.com")}, actor); err != nil {
			t.Errorf("Update own email: %v", err)
		}
	})

	t.Run("email of another donor", func(t *testing.T) {
		_, err := f.svc.Update(ctx, b.ID.Hex(), models.DonorPatch{Email: ptr("a@X.com")}, actor)
		if !errors.Is(err, ErrDuplicateEmail) {
			t.Errorf("err = %v, want ErrDuplicateEmail", err)
		}
	})

	t.Run("only present fields are validated", func(t *testing.T) {
		_, err := f.svc.Update(ctx, a.ID.Hex(), models.DonorPatch{PhoneNumber: ptr("nope")}, actor)
		var ve *ValidationError
		if !errors.As(err, &ve) || len(ve.Fields) != 1 || ve.Fields[FieldPhoneNumber] == "" {
			t.Errorf("err = %v, want a single phone_number message", err)
		}
	})

	t.Run("unknown id", func(t *testing.T) {
		for _, id := range []string{primitive.NewObjectID().Hex(), "not-an-id"} {
			_, err := f.svc.Update(ctx, id, models.DonorPatch{FullName: ptr("X")}, actor)
			if !errors.Is(err, ErrNotFound) {
				t.Errorf("Update(%q) err = %v, want ErrNotFound", id, err)
			}
		}
	})
}

func TestUpdate_RecordVanishesBeforeReRead(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	d, _ := f.svc.Create(ctx, ahmedForm(), actor)
	f.store.vanishing = true

	_, err := f.svc.Update(ctx, d.ID.Hex(), models.DonorPatch{Notes: ptr("x")}, actor)
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestDeactivateReactivate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	d, _ := f.svc.Create(ctx, ahmedForm(), actor)
	id := d.ID.Hex()

	for i := 0; i < 2; i++ {
		if err := f.svc.Deactivate(ctx, id, actor); err != nil {
			t.Fatalf("Deactivate #%d: %v", i+1, err)
		}
	}
	got, _ := f.svc.Get(ctx, id)
	if got.IsActive {
		t.Error("donor should be inactive")
	}

	for i := 0; i < 2; i++ {
		if err := f.svc.Reactivate(ctx, id, "uid-other"); err != nil {
			t.Fatalf("Reactivate #%d: %v", i+1, err)
		}
	}
	got, _ = f.svc.Get(ctx, id)
	if !got.IsActive || got.UpdatedBy != "uid-other" {
		t.Errorf("after reactivate: active=%v updated_by=%q", got.IsActive, got.UpdatedBy)
	}

	if err := f.svc.Deactivate(ctx, primitive.NewObjectID().Hex(), actor); !errors.Is(err, ErrNotFound) {
		t.Errorf("Deactivate(unknown) err = %v, want ErrNotFound", err)
	}
}

func TestList_ActiveSubset(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	var created []models.Donor
	for i := 0; i < 5; i++ {
		d, err := f.svc.Create(ctx, formFor(fmt.Sprintf("Donor %d", i), fmt.Sprintf("d%d@x.com", i)), actor)
		if err != nil {
			t.Fatal(err)
		}
		created = append(created, d)
	}
	f.svc.Deactivate(ctx, created[1].ID.Hex(), actor)
	f.svc.Deactivate(ctx, created[3].ID.Hex(), actor)

	all, _ := f.svc.List(ctx, false)
	active, _ := f.svc.List(ctx, true)

	if len(all) != 5 || len(active) != 3 {
		t.Fatalf("len(all)=%d len(active)=%d", len(all), len(active))
	}
	for _, d := range active {
		if !d.IsActive {
			t.Errorf("inactive donor %s in active list", d.FullName)
		}
		if _, ok := containsID(all, d.ID); !ok {
			t.Errorf("active donor %s missing from full list", d.FullName)
		}
	}
	for _, d := range all {
		_, inActive := containsID(active, d.ID)
		if d.IsActive != inActive {
			t.Errorf("%s: active=%v but in active list=%v", d.FullName, d.IsActive, inActive)
		}
	}
	// newest first
	if all[0].ID != created[4].ID || all[4].ID != created[0].ID {
		t.Errorf("order = %v", ids(all))
	}
}

func TestScenario_AhmedBenali(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	ahmed, err := f.svc.Create(ctx, ahmedForm(), actor)
	if err != nil || !ahmed.IsActive {
		t.Fatalf("create = %+v, %v", ahmed, err)
	}

	if _, err := f.svc.Create(ctx, formFor("Other Person", "a@x.com"), actor); !errors.Is(err, ErrDuplicateEmail) {
		t.Fatalf("duplicate err = %v", err)
	}
	if all, _ := f.svc.List(ctx, false); len(all) != 1 {
		t.Fatalf("count after duplicate = %d, want 1", len(all))
	}

	if err := f.svc.Deactivate(ctx, ahmed.ID.Hex(), actor); err != nil {
		t.Fatal(err)
	}
	active, _ := f.svc.List(ctx, true)
	if _, ok := containsID(active, ahmed.ID); ok {
		t.Error("deactivated donor in active list")
	}
	all, _ := f.svc.List(ctx, false)
	if d, ok := containsID(all, ahmed.ID); !ok || d.IsActive {
		t.Errorf("full list entry = %+v, present=%v", d, ok)
	}

	if err := f.svc.Delete(ctx, ahmed.ID.Hex(), actor); err != nil {
		t.Fatal(err)
	}
	active, _ = f.svc.List(ctx, true)
	all, _ = f.svc.List(ctx, false)
	if len(active) != 0 || len(all) != 0 {
		t.Errorf("after delete: active=%v all=%v", ids(active), ids(all))
	}
	if got, err := f.svc.Get(ctx, ahmed.ID.Hex()); got != nil || err != nil {
		t.Errorf("Get after delete = %v, %v", got, err)
	}
}

func TestDelete_AbsentIsNotAnError(t *testing.T) {
	f := newFixture(t)
	for _, id := range []string{primitive.NewObjectID().Hex(), "garbage"} {
		if err := f.svc.Delete(context.Background(), id, actor); err != nil {
			t.Errorf("Delete(%q) = %v", id, err)
		}
	}
}

func TestSearch(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.svc.Create(ctx, formFor("Amina Alaoui", "amina@x.com"), actor)
	f.svc.Create(ctx, formFor("Karim Tazi", "am.karim@x.com"), actor)
	f.svc.Create(ctx, formFor("Amal Berrada", "amal@x.com"), actor)
	f.svc.Create(ctx, formFor("Youssef Amrani", "youssef@x.com"), actor)

	got, err := f.svc.Search(ctx, "  AM ")
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	names := make([]string, len(got))
	for i, d := range got {
		names[i] = d.FullName
	}
	// name matches first (sorted by folded name), then email-only matches;
	// Youssef Amrani matches neither prefix.
	want := "[Amal Berrada Amina Alaoui Karim Tazi]"
	if fmt.Sprint(names) != want {
		t.Errorf("Search = %v, want %s", names, want)
	}

	for _, blank := range []string{"", "   "} {
		got, err := f.svc.Search(ctx, blank)
		if err != nil || got == nil || len(got) != 0 {
			t.Errorf("Search(%q) = %v, %v; want empty", blank, got, err)
		}
	}
}

func TestSearch_EachQueryCapped(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// 25 name matches and 25 different email matches.
	for i := 0; i < 25; i++ {
		f.svc.Create(ctx, formFor(fmt.Sprintf("Zed %02d", i), fmt.Sprintf("n%02d@x.com", i)), actor)
		f.svc.Create(ctx, formFor(fmt.Sprintf("Other %02d", i), fmt.Sprintf("zed%02d@x.com", i)), actor)
	}
	got, err := f.svc.Search(ctx, "zed")
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2*SearchLimit {
		t.Errorf("len = %d, want %d", len(got), 2*SearchLimit)
	}
	seen := map[primitive.ObjectID]bool{}
	for _, d := range got {
		if seen[d.ID] {
			t.Errorf("duplicate %s", d.FullName)
		}
		seen[d.ID] = true
	}
}

func TestSearch_UnionDeduplicates(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	d, _ := f.svc.Create(ctx, formFor("Sam Lahlou", "sam@x.com"), actor)

	got, _ := f.svc.Search(ctx, "sam")
	if len(got) != 1 || got[0].ID != d.ID {
		t.Errorf("Search = %v, want only %s", ids(got), d.ID.Hex())
	}
}

func TestCache_ListsServedFromCacheUntilMutation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.svc.Create(ctx, ahmedForm(), actor)
	f.svc.List(ctx, true)
	f.svc.List(ctx, true)
	if n := f.store.lists.Load(); n != 1 {
		t.Fatalf("store lists = %d, want 1 (second read cached)", n)
	}

	d, _ := f.svc.Create(ctx, formFor("New Donor", "new@x.com"), actor)
	got, _ := f.svc.List(ctx, true)
	if _, ok := containsID(got, d.ID); !ok {
		t.Error("list not invalidated by create")
	}
	if n := f.store.lists.Load(); n != 2 {
		t.Errorf("store lists = %d, want 2", n)
	}

	f.svc.Deactivate(ctx, d.ID.Hex(), actor)
	got, _ = f.svc.List(ctx, true)
	if _, ok := containsID(got, d.ID); ok {
		t.Error("list not invalidated by deactivate")
	}
	rec, _ := f.svc.Get(ctx, d.ID.Hex())
	if rec == nil || rec.IsActive {
		t.Error("record projection not invalidated by deactivate")
	}
}

func TestDocuments(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	d, _ := f.svc.Create(ctx, ahmedForm(), actor)
	id := d.ID.Hex()

	doc, err := f.svc.AttachDocument(ctx, id, Upload{
		Name:        `C:\scans\reçu 2026.pdf`,
		ContentType: "application/pdf",
		Size:        9,
		Body:        strings.NewReader("pdf bytes"),
	}, "uid-uploader")
	if err != nil {
		t.Fatalf("AttachDocument: %v", err)
	}
	if doc.Name != "re_u_2026.pdf" {
		t.Errorf("name = %q", doc.Name)
	}
	if !strings.HasPrefix(doc.Key, "donors/"+id+"/") || doc.UploadedBy != "uid-uploader" {
		t.Errorf("doc = %+v", doc)
	}

	b, err := os.ReadFile(f.objectPath(t, doc.Key))
	if err != nil {
		t.Fatalf("object not stored: %v", err)
	}
	if string(b) != "pdf bytes" {
		t.Errorf("object = %q", b)
	}

	got, _ := f.svc.Get(ctx, id)
	if len(got.Documents) != 1 || got.Documents[0].ID != doc.ID {
		t.Fatalf("documents = %+v", got.Documents)
	}
	if got.UpdatedBy != "uid-uploader" {
		t.Errorf("updated_by = %q", got.UpdatedBy)
	}

	u, err := f.svc.DocumentURL(ctx, id, doc.ID)
	if err != nil || u != f.files.URL(doc.Key) {
		t.Errorf("DocumentURL = %q, %v", u, err)
	}

	if err := f.svc.RemoveDocument(ctx, id, "missing", actor); !errors.Is(err, ErrNotFound) {
		t.Errorf("RemoveDocument(missing) err = %v", err)
	}
	if err := f.svc.RemoveDocument(ctx, id, doc.ID, actor); err != nil {
		t.Fatalf("RemoveDocument: %v", err)
	}
	if _, err := os.Stat(f.objectPath(t, doc.Key)); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("object still present: %v", err)
	}
	got, _ = f.svc.Get(ctx, id)
	if len(got.Documents) != 0 {
		t.Errorf("documents after remove = %+v", got.Documents)
	}
}

func TestDelete_RemovesDocumentObjects(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	d, _ := f.svc.Create(ctx, ahmedForm(), actor)

	doc, err := f.svc.AttachDocument(ctx, d.ID.Hex(), Upload{Name: "id.png", Body: strings.NewReader("img")}, actor)
	if err != nil {
		t.Fatal(err)
	}
	if err := f.svc.Delete(ctx, d.ID.Hex(), actor); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(f.objectPath(t, doc.Key)); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("object still present after donor delete: %v", err)
	}
}

func TestDocuments_NoStorage(t *testing.T) {
	svc := New(donorstore.NewMemStore(), nil, nil, nil)
	ctx := context.Background()
	d, _ := svc.Create(ctx, ahmedForm(), actor)

	if _, err := svc.AttachDocument(ctx, d.ID.Hex(), Upload{Name: "a", Body: strings.NewReader("x")}, actor); !errors.Is(err, ErrNoStorage) {
		t.Errorf("err = %v, want ErrNoStorage", err)
	}
}

func TestSummary(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	a, _ := f.svc.Create(ctx, formFor("A", "a@x.com"), actor)
	f.svc.Create(ctx, formFor("B", "b@x.com"), actor)
	sp := formFor("C", "c@x.com")
	sp.DonorType = models.DonorTypeSponsorship
	f.svc.Create(ctx, sp, actor)
	f.svc.Deactivate(ctx, a.ID.Hex(), actor)

	got, err := f.svc.Summary(ctx)
	if err != nil {
		t.Fatal(err)
	}
	want := Summary{Total: 3, Active: 2, Inactive: 1, General: 2, Sponsorship: 1}
	if got != want {
		t.Errorf("Summary = %+v, want %+v", got, want)
	}
}

func TestMalformedRecord_GetFailsListSkips(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	good, err := f.svc.Create(ctx, ahmedForm(), actor)
	if err != nil {
		t.Fatal(err)
	}
	bad := models.Donor{ID: primitive.NewObjectID(), FullName: "Broken", DonorType: "vip"}
	f.store.Put(bad)

	if _, err := f.svc.Get(ctx, bad.ID.Hex()); !errors.Is(err, donorstore.ErrMalformed) {
		t.Errorf("Get err = %v, want ErrMalformed", err)
	}
	list, err := f.svc.List(ctx, false)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(list) != 1 || list[0].ID != good.ID {
		t.Errorf("List = %+v, want only the well-formed donor", list)
	}
}

func TestSearch_AccentedEmailPrefix(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	d, err := f.store.Insert(ctx, models.Donor{
		FullName:                 "José Martins",
		Email:                    "José.Martins@example.org",
		DonorType:                models.DonorTypeGeneral,
		CommunicationPreferences: []models.CommunicationPreference{models.PrefEmail},
		IsActive:                 true,
		CreatedAt:                f.now,
		CreatedBy:                actor,
	})
	if err != nil {
		t.Fatal(err)
	}

	got, err := f.svc.Search(ctx, "josé.m")
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(got) != 1 || got[0].ID != d.ID {
		t.Errorf("Search(josé.m) = %+v, want José Martins", got)
	}
}

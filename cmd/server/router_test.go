package main

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/png"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thereayou/sellboard/internal/database"
	"github.com/thereayou/sellboard/internal/models"
	"github.com/thereayou/sellboard/internal/pictures"
	"github.com/thereayou/sellboard/internal/session"
	ws "github.com/thereayou/sellboard/internal/websocket"
)

type testApp struct {
	srv   *httptest.Server
	db    *database.Database
	saver *pictures.Saver
}

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	buf := &bytes.Buffer{}
	require.NoError(t, png.Encode(buf, image.NewRGBA(image.Rect(0, 0, w, h))))
	return buf.Bytes()
}

func newTestApp(t *testing.T) *testApp {
	t.Helper()
	gin.SetMode(gin.TestMode)

	log := logrus.New()
	log.SetOutput(io.Discard)

	db, err := database.Open(database.DriverSQLite, fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString()))
	require.NoError(t, err)

	saver := pictures.NewSaver(t.TempDir())
	require.NoError(t, os.WriteFile(saver.Path(models.DefaultImage), pngBytes(t, 1, 1), 0o600))
	require.NoError(t, saver.EnsureDir())

	sessions := session.NewManager(db, session.NewMemoryRevocations(), session.Options{
		Secret:      "test-secret",
		SessionTTL:  time.Hour,
		RememberTTL: 24 * time.Hour,
	})

	hub := ws.NewHub(log)
	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)

	router, err := NewRouter(RouterDeps{
		DB:        db,
		Sessions:  sessions,
		Saver:     saver,
		Hub:       hub,
		Log:       log,
		StaticDir: t.TempDir(),
		PerPage:   5,
	})
	require.NoError(t, err)

	srv := httptest.NewServer(router)
	t.Cleanup(func() {
		srv.Close()
		cancel()
		_ = db.Close()
	})
	return &testApp{srv: srv, db: db, saver: saver}
}

// browser keeps cookies and does not follow redirects.
type browser struct {
	t      *testing.T
	app    *testApp
	client *http.Client
}

func (a *testApp) browser(t *testing.T) *browser {
	jar, err := cookiejar.New(nil)
	require.NoError(t, err)
	return &browser{t: t, app: a, client: &http.Client{
		Jar: jar,
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}}
}

func (b *browser) do(req *http.Request) (*http.Response, string) {
	b.t.Helper()
	resp, err := b.client.Do(req)
	require.NoError(b.t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(b.t, err)
	return resp, string(body)
}

func (b *browser) get(path string) (*http.Response, string) {
	b.t.Helper()
	req, err := http.NewRequest(http.MethodGet, b.app.srv.URL+path, nil)
	require.NoError(b.t, err)
	return b.do(req)
}

func (b *browser) post(path string, form url.Values) (*http.Response, string) {
	b.t.Helper()
	req, err := http.NewRequest(http.MethodPost, b.app.srv.URL+path, strings.NewReader(form.Encode()))
	require.NoError(b.t, err)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return b.do(req)
}

func (b *browser) postMultipart(path string, fields map[string]string, filename string, file []byte) (*http.Response, string) {
	b.t.Helper()
	body := &bytes.Buffer{}
	mw := multipart.NewWriter(body)
	for k, v := range fields {
		require.NoError(b.t, mw.WriteField(k, v))
	}
	if filename != "" {
		fw, err := mw.CreateFormFile("picture", filename)
		require.NoError(b.t, err)
		_, err = fw.Write(file)
		require.NoError(b.t, err)
	}
	require.NoError(b.t, mw.Close())

	req, err := http.NewRequest(http.MethodPost, b.app.srv.URL+path, body)
	require.NoError(b.t, err)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return b.do(req)
}

func (b *browser) register(username, email, password string) {
	b.t.Helper()
	resp, _ := b.post("/register", url.Values{
		"username": {username}, "email": {email},
		"password": {password}, "confirm_password": {password},
	})
	require.Equal(b.t, http.StatusSeeOther, resp.StatusCode)
	require.Equal(b.t, "/login", resp.Header.Get("Location"))
}

func (b *browser) login(email, password string) {
	b.t.Helper()
	resp, _ := b.post("/login", url.Values{"email": {email}, "password": {password}})
	require.Equal(b.t, http.StatusSeeOther, resp.StatusCode)
}

func (b *browser) newSell(title string, price string) *models.Sell {
	b.t.Helper()
	resp, _ := b.post("/sell/new", url.Values{"title": {title}, "content": {"desc"}, "price": {price}})
	require.Equal(b.t, http.StatusSeeOther, resp.StatusCode)
	require.Equal(b.t, "/home", resp.Header.Get("Location"))

	page, err := b.app.db.ListSells(context.Background(), database.PageQuery{Page: 1, PerPage: 1})
	require.NoError(b.t, err)
	require.Equal(b.t, title, page.Items[0].Title)
	return &page.Items[0]
}

func TestEndToEndSellLifecycle(t *testing.T) {
	app := newTestApp(t)
	alice := app.browser(t)

	alice.register("alice", "a@x.com", "pw")
	alice.login("a@x.com", "pw")
	sell := alice.newSell("Bike", "50")
	assert.Equal(t, 50.0, sell.Price)
	assert.Equal(t, models.DefaultImage, sell.PictureFile)
	assert.Equal(t, "alice", sell.Author.Username)

	aliceUser, err := app.db.FindUserByUsername(context.Background(), "alice")
	require.NoError(t, err)
	for _, q := range []database.PageQuery{
		{Page: 1, PerPage: 5},
		{Page: 1, PerPage: 5, AuthorID: &aliceUser.ID},
	} {
		page, err := app.db.ListSells(context.Background(), q)
		require.NoError(t, err)
		require.NotEmpty(t, page.Items)
		assert.Equal(t, sell.ID, page.Items[0].ID)
	}

	_, home := alice.get("/")
	assert.Contains(t, home, "Bike")
	assert.Contains(t, home, "$50.00")
	assert.Contains(t, home, "Your new sell has been created!")

	_, feed := alice.get("/user/alice")
	assert.Contains(t, feed, "/sell/"+sell.ID.String())

	resp, _ := alice.post("/sell/"+sell.ID.String()+"/delete", nil)
	assert.Equal(t, http.StatusSeeOther, resp.StatusCode)
	assert.Equal(t, "/home", resp.Header.Get("Location"))

	_, home = alice.get("/")
	assert.NotContains(t, home, "/sell/"+sell.ID.String())
	assert.Contains(t, home, "Your sell has been deleted!")
	_, feed = alice.get("/user/alice")
	assert.NotContains(t, feed, "/sell/"+sell.ID.String())

	resp, _ = alice.get("/sell/" + sell.ID.String())
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestRegisterRejectsDuplicates(t *testing.T) {
	app := newTestApp(t)
	app.browser(t).register("alice", "a@x.com", "pw")

	b := app.browser(t)
	resp, body := b.post("/register", url.Values{
		"username": {"bob"}, "email": {"a@x.com"}, "password": {"pw"}, "confirm_password": {"pw"},
	})
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, "That email is taken. Please choose a different one.")

	resp, body = b.post("/register", url.Values{
		"username": {"alice"}, "email": {"b@x.com"}, "password": {"pw"}, "confirm_password": {"pw"},
	})
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, "That username is taken. Please choose a different one.")

	resp, body = b.post("/register", url.Values{
		"username": {"bob"}, "email": {"b@x.com"}, "password": {"pw"}, "confirm_password": {"px"},
	})
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, "Field must be equal to password.")
}

func TestLoginFlow(t *testing.T) {
	app := newTestApp(t)
	b := app.browser(t)
	b.register("alice", "a@x.com", "pw")

	_, page := b.get("/login")
	assert.Contains(t, page, "Your account has been created! You are now able to log in")
	_, page = b.get("/login")
	assert.NotContains(t, page, "Your account has been created!")

	resp, body := b.post("/login", url.Values{"email": {"a@x.com"}, "password": {"nope"}})
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, "Login Unsuccessful. Please check email and password")

	resp, body = b.post("/login", url.Values{"email": {"ghost@x.com"}, "password": {"pw"}})
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, "Login Unsuccessful. Please check email and password")

	resp, _ = b.post("/login?next=%2Faccount", url.Values{"email": {"a@x.com"}, "password": {"pw"}})
	assert.Equal(t, http.StatusSeeOther, resp.StatusCode)
	assert.Equal(t, "/account", resp.Header.Get("Location"))

	resp, _ = b.get("/account")
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	// вошедшего пользователя не пускают на login/register
	resp, _ = b.get("/login")
	assert.Equal(t, http.StatusFound, resp.StatusCode)
	assert.Equal(t, "/home", resp.Header.Get("Location"))

	resp, _ = b.get("/logout")
	assert.Equal(t, http.StatusFound, resp.StatusCode)
	resp, _ = b.get("/account")
	assert.Equal(t, http.StatusFound, resp.StatusCode)
}

func TestLoginIgnoresForeignNext(t *testing.T) {
	app := newTestApp(t)
	b := app.browser(t)
	b.register("alice", "a@x.com", "pw")

	resp, _ := b.post("/login?next=%2F%2Fevil.example", url.Values{"email": {"a@x.com"}, "password": {"pw"}})
	assert.Equal(t, http.StatusSeeOther, resp.StatusCode)
	assert.Equal(t, "/home", resp.Header.Get("Location"))
}

func TestLoginRememberSetsPersistentCookie(t *testing.T) {
	app := newTestApp(t)
	b := app.browser(t)
	b.register("alice", "a@x.com", "pw")

	resp, _ := b.post("/login", url.Values{"email": {"a@x.com"}, "password": {"pw"}, "remember": {"true"}})
	require.Equal(t, http.StatusSeeOther, resp.StatusCode)

	var maxAge int
	for _, c := range resp.Cookies() {
		if c.Name == session.CookieName {
			maxAge = c.MaxAge
		}
	}
	assert.Equal(t, int((24 * time.Hour).Seconds()), maxAge)
}

func TestGuards(t *testing.T) {
	app := newTestApp(t)
	alice := app.browser(t)
	alice.register("alice", "a@x.com", "pw")
	alice.login("a@x.com", "pw")
	sell := alice.newSell("Bike", "50")
	sellPath := "/sell/" + sell.ID.String()

	anon := app.browser(t)
	resp, _ := anon.get("/account")
	assert.Equal(t, http.StatusFound, resp.StatusCode)
	assert.Equal(t, "/login?next=%2Faccount", resp.Header.Get("Location"))

	resp, _ = anon.post(sellPath+"/delete", nil)
	assert.Equal(t, http.StatusFound, resp.StatusCode)
	assert.True(t, strings.HasPrefix(resp.Header.Get("Location"), "/login?next="))

	resp, _ = anon.get("/sell/new")
	assert.Equal(t, http.StatusFound, resp.StatusCode)

	bob := app.browser(t)
	bob.register("bob", "b@x.com", "pw")
	bob.login("b@x.com", "pw")

	resp, _ = bob.get(sellPath + "/update")
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	resp, _ = bob.post(sellPath+"/update", url.Values{"title": {"Mine"}, "content": {"x"}})
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	resp, _ = bob.post(sellPath+"/delete", nil)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	got, err := app.db.GetSell(context.Background(), sell.ID)
	require.NoError(t, err)
	assert.Equal(t, "Bike", got.Title)

	resp, _ = bob.post("/sell/"+uuid.NewString()+"/delete", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestNotFoundPages(t *testing.T) {
	app := newTestApp(t)
	b := app.browser(t)

	for _, path := range []string{
		"/sell/" + uuid.NewString(),
		"/sell/42",
		"/user/nobody",
		"/?page=0",
		"/home?page=2",
		"/no/such/page",
	} {
		resp, _ := b.get(path)
		assert.Equal(t, http.StatusNotFound, resp.StatusCode, path)
	}

	resp, _ := b.get("/?page=abc")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestSellUpdateByOwner(t *testing.T) {
	app := newTestApp(t)
	alice := app.browser(t)
	alice.register("alice", "a@x.com", "pw")
	alice.login("a@x.com", "pw")
	sell := alice.newSell("Bike", "50")
	sellPath := "/sell/" + sell.ID.String()

	resp, form := alice.get(sellPath + "/update")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, form, `value="Bike"`)

	resp, body := alice.post(sellPath+"/update", url.Values{"title": {""}, "content": {"x"}})
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, "This field is required.")

	resp, _ = alice.post(sellPath+"/update", url.Values{"title": {"Road bike"}, "content": {"fast"}})
	assert.Equal(t, http.StatusSeeOther, resp.StatusCode)
	assert.Equal(t, sellPath, resp.Header.Get("Location"))

	_, page := alice.get(sellPath)
	assert.Contains(t, page, "Road bike")
	assert.Contains(t, page, "Your sell has been updated!")

	got, err := app.db.GetSell(context.Background(), sell.ID)
	require.NoError(t, err)
	assert.Equal(t, 50.0, got.Price)
	assert.Equal(t, sell.DatePosted.Unix(), got.DatePosted.Unix())
}

func TestSellFormValidation(t *testing.T) {
	app := newTestApp(t)
	alice := app.browser(t)
	alice.register("alice", "a@x.com", "pw")
	alice.login("a@x.com", "pw")

	resp, body := alice.post("/sell/new", url.Values{"title": {"Bike"}, "content": {"desc"}, "price": {"-3"}})
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, "Number must be greater than 0.")

	resp, body = alice.postMultipart("/sell/new",
		map[string]string{"title": "Bike", "content": "desc", "price": "5"}, "bike.gif", pngBytes(t, 4, 4))
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, "File does not have an approved extension")

	resp, body = alice.postMultipart("/sell/new",
		map[string]string{"title": "Bike", "content": "desc", "price": "5"}, "bike.png", []byte("not an image"))
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, "Unsupported image format.")

	page, err := app.db.ListSells(context.Background(), database.PageQuery{Page: 1, PerPage: 5})
	require.NoError(t, err)
	assert.Zero(t, page.Total)
}

func TestSellWithPicture(t *testing.T) {
	app := newTestApp(t)
	alice := app.browser(t)
	alice.register("alice", "a@x.com", "pw")
	alice.login("a@x.com", "pw")

	resp, _ := alice.postMultipart("/sell/new",
		map[string]string{"title": "Lamp", "content": "bright", "price": "12.5"}, "lamp.png", pngBytes(t, 400, 200))
	require.Equal(t, http.StatusSeeOther, resp.StatusCode)

	page, err := app.db.ListSells(context.Background(), database.PageQuery{Page: 1, PerPage: 5})
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	name := page.Items[0].PictureFile
	assert.NotEqual(t, models.DefaultImage, name)
	assert.FileExists(t, app.saver.Path(name))

	resp, _ = alice.get("/media/" + name)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestSellRejectsHugePicture(t *testing.T) {
	app := newTestApp(t)
	alice := app.browser(t)
	alice.register("alice", "a@x.com", "pw")
	alice.login("a@x.com", "pw")

	huge := &bytes.Buffer{}
	require.NoError(t, png.Encode(huge, image.NewGray(image.Rect(0, 0, 5000, 4000))))

	resp, body := alice.postMultipart("/sell/new",
		map[string]string{"title": "Poster", "content": "big", "price": "3"}, "poster.png", huge.Bytes())
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, "Image dimensions are too large.")

	page, err := app.db.ListSells(context.Background(), database.PageQuery{Page: 1, PerPage: 5})
	require.NoError(t, err)
	assert.Empty(t, page.Items)

	entries, err := os.ReadDir(app.saver.Dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestAccountUpdate(t *testing.T) {
	app := newTestApp(t)
	app.browser(t).register("bob", "b@x.com", "pw")

	alice := app.browser(t)
	alice.register("alice", "a@x.com", "pw")
	alice.login("a@x.com", "pw")

	resp, page := alice.get("/account")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, page, `value="a@x.com"`)
	assert.Contains(t, page, "/media/"+models.DefaultImage)

	resp, body := alice.postMultipart("/account", map[string]string{"username": "bob", "email": "a@x.com"}, "", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, "That username is taken. Please choose a different one.")

	resp, _ = alice.postMultipart("/account",
		map[string]string{"username": "alicia", "email": "alicia@x.com"}, "me.png", pngBytes(t, 300, 300))
	assert.Equal(t, http.StatusSeeOther, resp.StatusCode)
	assert.Equal(t, "/account", resp.Header.Get("Location"))

	user, err := app.db.FindUserByEmail(context.Background(), "alicia@x.com")
	require.NoError(t, err)
	assert.Equal(t, "alicia", user.Username)
	assert.NotEqual(t, models.DefaultImage, user.ImageFile)
	assert.FileExists(t, filepath.Join(app.saver.Dir, user.ImageFile))

	_, page = alice.get("/account")
	assert.Contains(t, page, "Your account has been updated!")
	assert.Contains(t, page, "/media/"+user.ImageFile)

	// старый email больше не подходит для входа
	other := app.browser(t)
	resp, _ = other.post("/login", url.Values{"email": {"a@x.com"}, "password": {"pw"}})
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	other.login("alicia@x.com", "pw")
}

func TestFeedPaginationAcrossPages(t *testing.T) {
	app := newTestApp(t)
	alice := app.browser(t)
	alice.register("alice", "a@x.com", "pw")
	alice.login("a@x.com", "pw")
	for i := 0; i < 7; i++ {
		alice.newSell(fmt.Sprintf("Item %d", i), "1")
	}

	_, first := alice.get("/?page=1")
	_, second := alice.get("/?page=2")
	assert.Contains(t, first, "Item 6")
	assert.NotContains(t, first, "Item 1<")
	assert.Contains(t, second, "Item 0")
	assert.Contains(t, second, `href="?page=1"`)

	resp, _ := alice.get("/?page=3")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestLiveFeedReceivesSellEvents(t *testing.T) {
	app := newTestApp(t)
	alice := app.browser(t)
	alice.register("alice", "a@x.com", "pw")
	alice.login("a@x.com", "pw")

	wsURL := "ws" + strings.TrimPrefix(app.srv.URL, "http") + "/feed/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	// даём хабу зарегистрировать клиента
	time.Sleep(50 * time.Millisecond)
	sell := alice.newSell("Bike", "50")

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var ev ws.Event
	require.NoError(t, conn.ReadJSON(&ev))
	assert.Equal(t, ws.TypeSellCreated, ev.Type)
	assert.Contains(t, string(ev.Data), sell.ID.String())
	assert.Contains(t, string(ev.Data), `"author":"alice"`)
}

func TestHealth(t *testing.T) {
	app := newTestApp(t)
	resp, body := app.browser(t).get("/health")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"status":"ok"}`, body)
}

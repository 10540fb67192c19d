package rest_test

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/dmcompanion/api/model"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func createCharacter(t *testing.T, r *gin.Engine, body map[string]interface{}) map[string]interface{} {
	t.Helper()
	w := postJSON(r, "/characters", body)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	return decode(t, w)["createdCharacter"].(map[string]interface{})
}

func TestCreateCharacter_Defaults(t *testing.T) {
	r, _ := newCompanionRouter(t)

	created := createCharacter(t, r, map[string]interface{}{
		"name":         "Tava",
		"level":        2,
		"armorclass":   15,
		"maxhitpoints": 30,
		"player":       false,
	})

	// hitpoints omitted → defaults to maxhitpoints
	assert.Equal(t, float64(30), created["hitpoints"])
	assert.Equal(t, float64(30), created["maxhitpoints"])
	// no upload, no URL → placeholder
	assert.Equal(t, testDefaultPic, created["picUrl"])
	// conditions default to an empty list
	assert.Equal(t, []interface{}{}, created["conditions"])
	// non-player characters carry no owner
	assert.Nil(t, created["user"])

	link := created["request"].(map[string]interface{})
	assert.Equal(t, "GET", link["type"])
	assert.Equal(t, testBaseURL+"/characters/"+created["id"].(string), link["url"])
}

func TestCreateCharacter_InvalidPicURL(t *testing.T) {
	r, _ := newCompanionRouter(t)

	created := createCharacter(t, r, map[string]interface{}{
		"name":         "Brug",
		"maxhitpoints": 12,
		"characterPic": "definitely not a url",
	})
	assert.Equal(t, testDefaultPic, created["picUrl"])
}

func TestCreateCharacter_UnreachablePicURL(t *testing.T) {
	r, _ := newCompanionRouter(t)

	created := createCharacter(t, r, map[string]interface{}{
		"name":         "Brug",
		"maxhitpoints": 12,
		"characterPic": "http://127.0.0.1:1/pic.png",
	})
	assert.Equal(t, testDefaultPic, created["picUrl"])
}

func TestCreateCharacter_FetchesValidPicURL(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte("img"))
	}))
	defer srv.Close()

	r, _ := newCompanionRouter(t)
	created := createCharacter(t, r, map[string]interface{}{
		"name":         "Lia",
		"maxhitpoints": 18,
		"characterPic": srv.URL + "/portraits/lia.png",
	})
	pic := created["picUrl"].(string)
	assert.True(t, strings.HasPrefix(pic, "uploads/"))
	assert.True(t, strings.HasSuffix(pic, "lia.png"))
}

func TestCreateCharacter_UserIgnoredForNonPlayers(t *testing.T) {
	r, _ := newCompanionRouter(t)

	created := createCharacter(t, r, map[string]interface{}{
		"name":         "Goblin",
		"maxhitpoints": 7,
		"player":       false,
		"user":         42,
	})
	assert.Nil(t, created["user"])
}

func TestCreateCharacter_PlayerKeepsUser(t *testing.T) {
	r, _ := newCompanionRouter(t)

	created := createCharacter(t, r, map[string]interface{}{
		"name":         "Tava",
		"maxhitpoints": 30,
		"player":       true,
		"user":         42,
	})
	assert.Equal(t, float64(42), created["user"])
}

func TestCreateCharacter_MissingName(t *testing.T) {
	r, _ := newCompanionRouter(t)
	w := postJSON(r, "/characters", map[string]interface{}{"maxhitpoints": 10})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestListCharacters_EmptyIs200(t *testing.T) {
	r, _ := newCompanionRouter(t)

	w := doRequest(r, http.MethodGet, "/characters", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	resp := decode(t, w)
	assert.Equal(t, float64(0), resp["count"])
	assert.Empty(t, resp["characters"])
}

func TestListCharacters(t *testing.T) {
	r, _ := newCompanionRouter(t)
	createCharacter(t, r, map[string]interface{}{"name": "A", "maxhitpoints": 5})
	createCharacter(t, r, map[string]interface{}{"name": "B", "maxhitpoints": 6})

	w := doRequest(r, http.MethodGet, "/characters", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	resp := decode(t, w)
	assert.Equal(t, float64(2), resp["count"])

	chars := resp["characters"].([]interface{})
	require.Len(t, chars, 2)
	first := chars[0].(map[string]interface{})
	assert.Contains(t, first, "request")
}

func TestGetCharacter(t *testing.T) {
	r, _ := newCompanionRouter(t)
	created := createCharacter(t, r, map[string]interface{}{"name": "Tava", "maxhitpoints": 30})
	id := created["id"].(string)

	w := doRequest(r, http.MethodGet, "/characters/"+id, nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	char := decode(t, w)["character"].(map[string]interface{})
	assert.Equal(t, "Tava", char["name"])
}

func TestGetCharacter_NotFound(t *testing.T) {
	r, _ := newCompanionRouter(t)
	w := doRequest(r, http.MethodGet, "/characters/nope", nil, "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestPatchCharacter(t *testing.T) {
	r, db := newCompanionRouter(t)
	created := createCharacter(t, r, map[string]interface{}{"name": "Tava", "maxhitpoints": 30})
	id := created["id"].(string)

	w := doRequest(r, http.MethodPatch, "/characters/"+id, []map[string]interface{}{
		{"propName": "level", "value": 5},
		{"propName": "conditions", "value": []string{"Stunned"}},
	}, "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var char model.Character
	require.NoError(t, db.First(&char, "id = ?", id).Error)
	assert.Equal(t, 5, char.Level)
	assert.JSONEq(t, `["Stunned"]`, string(char.Conditions))
}

func TestPatchCharacter_UnknownField(t *testing.T) {
	r, _ := newCompanionRouter(t)
	created := createCharacter(t, r, map[string]interface{}{"name": "Tava", "maxhitpoints": 30})
	id := created["id"].(string)

	w := doRequest(r, http.MethodPatch, "/characters/"+id, []map[string]interface{}{
		{"propName": "favouriteColour", "value": "blue"},
	}, "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestPatchCharacter_OwnerRequiresPlayer(t *testing.T) {
	r, db := newCompanionRouter(t)
	created := createCharacter(t, r, map[string]interface{}{"name": "Goblin", "maxhitpoints": 7})
	id := created["id"].(string)

	w := doRequest(r, http.MethodPatch, "/characters/"+id, []map[string]interface{}{
		{"propName": "user", "value": 5},
	}, "")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	var char model.Character
	require.NoError(t, db.First(&char, "id = ?", id).Error)
	assert.Nil(t, char.UserID)
}

func TestPatchCharacter_DemoteToNonPlayerClearsOwner(t *testing.T) {
	r, db := newCompanionRouter(t)
	created := createCharacter(t, r, map[string]interface{}{
		"name": "Tava", "maxhitpoints": 30, "player": true, "user": 42,
	})
	id := created["id"].(string)

	w := doRequest(r, http.MethodPatch, "/characters/"+id, []map[string]interface{}{
		{"propName": "player", "value": false},
	}, "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var char model.Character
	require.NoError(t, db.First(&char, "id = ?", id).Error)
	assert.False(t, char.Player)
	assert.Nil(t, char.UserID)
}

func TestPatchCharacter_PromoteToPlayerWithOwner(t *testing.T) {
	r, db := newCompanionRouter(t)
	created := createCharacter(t, r, map[string]interface{}{"name": "Goblin", "maxhitpoints": 7})
	id := created["id"].(string)

	w := doRequest(r, http.MethodPatch, "/characters/"+id, []map[string]interface{}{
		{"propName": "player", "value": true},
		{"propName": "user", "value": 9},
	}, "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var char model.Character
	require.NoError(t, db.First(&char, "id = ?", id).Error)
	assert.True(t, char.Player)
	require.NotNil(t, char.UserID)
	assert.Equal(t, int64(9), *char.UserID)
}

func TestPatchCharacter_NotFound(t *testing.T) {
	r, db := newCompanionRouter(t)
	created := createCharacter(t, r, map[string]interface{}{"name": "Tava", "level": 1, "maxhitpoints": 30})
	id := created["id"].(string)

	w := doRequest(r, http.MethodPatch, "/characters/no-such-id", []map[string]interface{}{
		{"propName": "level", "value": 9},
	}, "")
	assert.Equal(t, http.StatusInternalServerError, w.Code)

	// Nothing was mutated.
	var char model.Character
	require.NoError(t, db.First(&char, "id = ?", id).Error)
	assert.Equal(t, 1, char.Level)
}

func TestUpdateCharacterImage_NotFound(t *testing.T) {
	r, _ := newCompanionRouter(t)
	w := postJSON(r, "/characters/no-such-id/image", map[string]interface{}{
		"characterPic": "http://example.com/pic.png",
	})
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestUpdateCharacterImage_NoImage(t *testing.T) {
	r, _ := newCompanionRouter(t)
	created := createCharacter(t, r, map[string]interface{}{"name": "Tava", "maxhitpoints": 30})
	id := created["id"].(string)

	w := postJSON(r, "/characters/"+id+"/image", map[string]interface{}{
		"characterPic": "not a url",
	})
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestUpdateCharacterImage_FromURL(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte("img"))
	}))
	defer srv.Close()

	r, db := newCompanionRouter(t)
	created := createCharacter(t, r, map[string]interface{}{"name": "Tava", "maxhitpoints": 30})
	id := created["id"].(string)

	w := postJSON(r, "/characters/"+id+"/image", map[string]interface{}{
		"characterPic": srv.URL + "/new.png",
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	resp := decode(t, w)
	assert.True(t, strings.HasPrefix(resp["picUrl"].(string), testBaseURL+"/uploads/"))

	var char model.Character
	require.NoError(t, db.First(&char, "id = ?", id).Error)
	assert.True(t, strings.HasSuffix(char.PicURL, "new.png"))
}

func TestDeleteCharacter(t *testing.T) {
	r, _ := newCompanionRouter(t)
	created := createCharacter(t, r, map[string]interface{}{"name": "Tava", "maxhitpoints": 30})
	id := created["id"].(string)

	w := doRequest(r, http.MethodDelete, "/characters/"+id, nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(1), decode(t, w)["deletedCount"])

	w = doRequest(r, http.MethodGet, "/characters/"+id, nil, "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestDeleteAllCharacters_EmptyCollection(t *testing.T) {
	r, _ := newCompanionRouter(t)
	w := doRequest(r, http.MethodDelete, "/characters", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(0), decode(t, w)["deletedCount"])
}

func TestDeleteAllCharacters(t *testing.T) {
	r, _ := newCompanionRouter(t)
	createCharacter(t, r, map[string]interface{}{"name": "A", "maxhitpoints": 5})
	createCharacter(t, r, map[string]interface{}{"name": "B", "maxhitpoints": 6})

	w := doRequest(r, http.MethodDelete, "/characters", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(2), decode(t, w)["deletedCount"])
}

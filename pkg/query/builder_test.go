package query

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSelectBuilder(t *testing.T) {
	res, err := From("account").
		Select([]string{"name", "amount"}).
		ExcludeDeleted().
		WhereEquals("id", "a-1").
		ApplySecurity("`owner_id` = ?", []interface{}{"u-1"}).
		OrderBy("name", "desc").
		Limit(10).
		Build()
	require.NoError(t, err)

	assert.Equal(t,
		"SELECT `id`, `name`, `amount` FROM `account` WHERE `is_deleted` = 0 AND `id` = ? AND (`owner_id` = ?) ORDER BY `name` DESC LIMIT 10",
		res.SQL)
	assert.Equal(t, []interface{}{"a-1", "u-1"}, res.Params)
}

func TestInsertBuilderIsDeterministic(t *testing.T) {
	res, err := Insert("account", map[string]interface{}{"name": "Acme", "id": "a-1", "amount": 10}).Build()
	require.NoError(t, err)

	assert.Equal(t, "INSERT INTO `account` (`amount`, `id`, `name`) VALUES (?, ?, ?)", res.SQL)
	assert.Equal(t, []interface{}{10, "a-1", "Acme"}, res.Params)
}

func TestUpdateBuilder(t *testing.T) {
	res, err := Update("account").
		Set(map[string]interface{}{"name": "Acme 2"}).
		WhereEquals("id", "a-1").
		Build()
	require.NoError(t, err)

	assert.Equal(t, "UPDATE `account` SET `name` = ? WHERE `id` = ?", res.SQL)
	assert.Equal(t, []interface{}{"Acme 2", "a-1"}, res.Params)
}

func TestBuilderRejectsUnsafeIdentifiers(t *testing.T) {
	_, err := From("account; DROP TABLE x").Select([]string{"name"}).Build()
	assert.Error(t, err)

	_, err = From("account").Select([]string{"name`--"}).Build()
	assert.Error(t, err)

	_, err = Insert("account", map[string]interface{}{"bad col": 1}).Build()
	assert.Error(t, err)

	_, err = Update("account").Build()
	assert.Error(t, err)
}

func TestForUpdate(t *testing.T) {
	res, err := From("account").Select([]string{"id"}).WhereEquals("id", "a-1").BuildForUpdate()
	require.NoError(t, err)
	assert.Equal(t, "SELECT `id` FROM `account` WHERE `id` = ? FOR UPDATE", res.SQL)
}

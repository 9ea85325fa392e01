package normalize

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/FreelineGuide/ExamBulldozer/constants"
	"github.com/FreelineGuide/ExamBulldozer/internal/schema"
)

func builtinNormalizer(t *testing.T, id string) *Normalizer {
	t.Helper()
	repo, err := schema.NewBuiltinRepository()
	require.NoError(t, err)
	d, err := repo.Get(context.Background(), id)
	require.NoError(t, err)
	v, err := schema.Compile(d.JSONSchema)
	require.NoError(t, err)
	return New(v, nil)
}

func TestNormalize_OptionListBecomesLetters(t *testing.T) {
	n := builtinNormalizer(t, constants.SingleChoice)
	recs, errs := n.Normalize(0, `[{"question":"Which prints?","options":["print()","display()"],"answer":"a"}]`)
	require.Empty(t, errs)
	require.Len(t, recs, 1)
	assert.Equal(t, map[string]string{"A": "print()", "B": "display()"}, recs[0].Options)
	assert.Equal(t, TextAnswer("A"), recs[0].Answer)
}

func TestNormalize_AnswerShapes(t *testing.T) {
	multi := builtinNormalizer(t, constants.MultipleChoice)
	recs, errs := multi.Normalize(0, `{"question":"q","options":{"a":"1","b":"2","c":"3"},"answer":["a","c"]}`)
	require.Empty(t, errs)
	require.Len(t, recs, 1)
	assert.Equal(t, LettersAnswer("A", "C"), recs[0].Answer)
	assert.Equal(t, []string{"A", "B", "C"}, recs[0].OptionKeys())

	tf := builtinNormalizer(t, constants.TrueFalse)
	recs, errs = tf.Normalize(0, `{"question":"Go has generics","answer":true}`)
	require.Empty(t, errs)
	require.Len(t, recs, 1)
	assert.Equal(t, BoolAnswer(true), recs[0].Answer)
}

func TestNormalize_MalformedJSON(t *testing.T) {
	n := builtinNormalizer(t, constants.SingleChoice)
	recs, errs := n.Normalize(3, `this is not json {"question": `)
	assert.Empty(t, recs)
	require.Len(t, errs, 1)
	assert.Equal(t, constants.StageParsing, errs[0].Stage)
	assert.Equal(t, 3, errs[0].BatchIndex)
	assert.True(t, errs[0].BatchLevel())
}

func TestNormalize_MissingRequiredFieldKeepsSiblings(t *testing.T) {
	n := builtinNormalizer(t, constants.SingleChoice)
	reply := `[
		{"question":"q1","options":["x","y"],"answer":"B"},
		{"question":"q2","options":["x","y"]},
		{"question":"q3","options":["x","y"],"answer":"a"}
	]`
	recs, errs := n.Normalize(1, reply)
	require.Len(t, recs, 2)
	assert.Equal(t, "q1", recs[0].Question)
	assert.Equal(t, "q3", recs[1].Question)

	require.Len(t, errs, 1)
	assert.Equal(t, constants.StageSchemaValidation, errs[0].Stage)
	assert.Equal(t, 1, errs[0].BatchIndex)
	assert.Equal(t, 1, errs[0].RecordIndex)
	assert.Equal(t, "/answer", errs[0].Path)
}

func TestNormalize_AnswerOutsidePattern(t *testing.T) {
	n := builtinNormalizer(t, constants.SingleChoice)
	reply := "```json\n" + `[
		{"question":"q1","options":{"A":"x","B":"y"},"answer":"F"},
		{"question":"q2","options":{"A":"x","B":"y"},"answer":"B"}
	]` + "\n```"
	recs, errs := n.Normalize(0, reply)
	require.Len(t, recs, 1)
	assert.Equal(t, "q2", recs[0].Question)
	require.Len(t, errs, 1)
	assert.Equal(t, constants.StageSchemaValidation, errs[0].Stage)
	assert.Equal(t, "/answer", errs[0].Path)
	assert.Equal(t, "/properties/answer/pattern", errs[0].SchemaPath)
}

func TestNormalize_PerRecordShapeFaults(t *testing.T) {
	n := New(nil, nil)
	reply := `{"items":[
		{"question":"bad options","options":"A. x B. y","answer":"A"},
		{"question":"bad answer","options":["x","y"],"answer":3},
		{"question":"answer object","answer":{"A":true}},
		"just a string",
		{"question":"ok","options":["x","y"],"answer":"b"}
	]}`
	recs, errs := n.Normalize(0, reply)
	require.Len(t, recs, 1)
	assert.Equal(t, "ok", recs[0].Question)

	require.Len(t, errs, 4)
	for i, e := range errs {
		assert.Equal(t, constants.StageNormalization, e.Stage)
		assert.Equal(t, i, e.RecordIndex)
	}
	assert.Equal(t, "/options", errs[0].Path)
	assert.Equal(t, "/answer", errs[1].Path)
	assert.Equal(t, "/answer", errs[2].Path)
}

func TestNormalize_TopLevelScalar(t *testing.T) {
	recs, errs := New(nil, nil).Normalize(2, `42`)
	assert.Empty(t, recs)
	require.Len(t, errs, 1)
	assert.Equal(t, constants.StageNormalization, errs[0].Stage)
	assert.True(t, errs[0].BatchLevel())
}

func TestNormalize_OptionsCapAt26(t *testing.T) {
	opts := make([]any, 30)
	for i := range opts {
		opts[i] = "o"
	}
	got, err := normalizeOptions(ShapeOf(opts, true))
	require.Nil(t, err)
	assert.Len(t, got, MaxOptions)
	assert.Contains(t, got, "Z")
}

func TestNormalize_OptionKeyCollision(t *testing.T) {
	_, err := normalizeOptions(ShapeOf(map[string]any{"a": "1", "A": "2"}, true))
	require.NotNil(t, err)
	assert.Equal(t, "/options", err.path)
}

func TestCrossCheck(t *testing.T) {
	opts := map[string]string{"A": "x", "B": "y"}
	assert.Nil(t, crossCheck(Record{Options: opts, Answer: TextAnswer("B")}))
	assert.Nil(t, crossCheck(Record{Options: opts, Answer: TextAnswer("free text")}))
	assert.Nil(t, crossCheck(Record{Answer: TextAnswer("Q")}))

	err := crossCheck(Record{Options: opts, Answer: LettersAnswer("A", "C")})
	require.NotNil(t, err)
	assert.Equal(t, "/answer", err.path)

	err = crossCheck(Record{Options: map[string]string{"A": "x", "C": "y"}, Answer: TextAnswer("A")})
	require.NotNil(t, err)
	assert.Equal(t, "/options", err.path)

	err = crossCheck(Record{Options: map[string]string{"A": "x", "C": "y"}, Answer: TextAnswer("see analysis")})
	require.NotNil(t, err)
	assert.Equal(t, "/options", err.path)
}

func TestNormalize_OptionGapWithTextAnswer(t *testing.T) {
	n := New(nil, nil)
	recs, errs := n.Normalize(0, `[{"question":"q","options":{"A":"x","C":"y"},"answer":"a free-form answer"}]`)
	assert.Empty(t, recs)
	require.Len(t, errs, 1)
	assert.Equal(t, constants.StageNormalization, errs[0].Stage)
	assert.Equal(t, "/options", errs[0].Path)
}

func TestNormalize_CrossCheckAfterSchema(t *testing.T) {
	n := builtinNormalizer(t, constants.SingleChoice)
	recs, errs := n.Normalize(0, `[{"question":"q","options":{"A":"x","B":"y"},"answer":"D"}]`)
	assert.Empty(t, recs)
	require.Len(t, errs, 1)
	assert.Equal(t, constants.StageNormalization, errs[0].Stage)
	assert.Equal(t, "/answer", errs[0].Path)
}

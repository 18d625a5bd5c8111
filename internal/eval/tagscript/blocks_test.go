package tagscript

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func args(value string) map[string]Adapter {
	return map[string]Adapter{"args": NewStringAdapter(value)}
}

func TestIfBlock(t *testing.T) {
	interpreter := newTestInterpreter(t)
	template := "{if({args}==yes):Agreed|Refused}"

	assert.Equal(t, "Agreed", interpreter.Process(template, args("yes")).Body)
	assert.Equal(t, "Refused", interpreter.Process(template, args("no")).Body)
	assert.Equal(t, "", interpreter.Process("{if(1==2):only then}", nil).Body)
	assert.Equal(t, "y", interpreter.Process("{if(10>9):y|n}", nil).Body)
	assert.Equal(t, "{if(hello):a|b}", interpreter.Process("{if(hello):a|b}", nil).Body)
}

func TestIfBlockOnlyEvaluatesChosenBranch(t *testing.T) {
	interpreter := newTestInterpreter(t)

	resp := interpreter.Process("{if(true):a|{assign(x):1}}{x}", nil)
	assert.Equal(t, "a{x}", resp.Body)

	resp = interpreter.Process("{if(false):{embed(title):no}|b}", nil)
	assert.Equal(t, "b", resp.Body)
	assert.NotContains(t, resp.Actions, ActionEmbed)
}

func TestIfBlockBranchWithNestedSeparator(t *testing.T) {
	interpreter := newTestInterpreter(t)

	resp := interpreter.Process("{if(true):{if(false):x|y}|z}", nil)
	assert.Equal(t, "y", resp.Body)
}

func TestAnyAndAllBlocks(t *testing.T) {
	interpreter := newTestInterpreter(t)

	assert.Equal(t, "hi", interpreter.Process("{any({args}==hi|{args}==hello):hi|bye}", args("hello")).Body)
	assert.Equal(t, "bye", interpreter.Process("{any({args}==hi|{args}==hello):hi|bye}", args("yo")).Body)
	assert.Equal(t, "ok", interpreter.Process("{all(1<2|b>a):ok|no}", nil).Body)
	assert.Equal(t, "no", interpreter.Process("{all(1<2|a>b):ok|no}", nil).Body)
}

func TestBreakBlockReplacesBody(t *testing.T) {
	interpreter := newTestInterpreter(t)

	resp := interpreter.Process("before {break({args}==):Provide an argument.} after", args(""))
	assert.Equal(t, "Provide an argument.", resp.Body)

	resp = interpreter.Process("before {break({args}==):Provide an argument.} after", args("x"))
	assert.Equal(t, "before  after", resp.Body)
}

func TestStopBlockKeepsRenderedText(t *testing.T) {
	interpreter := newTestInterpreter(t)

	resp := interpreter.Process("before {stop(true):halted} after {embed(title):never}", nil)
	assert.Equal(t, "before halted", resp.Body)
	assert.NotContains(t, resp.Actions, ActionEmbed)
}

func TestCommandBlock(t *testing.T) {
	interpreter := newTestInterpreter(t)

	resp := interpreter.Process("{command:ping}{c:userinfo {args}}", args("kim"))
	assert.Equal(t, []string{"ping", "userinfo kim"}, resp.Actions[ActionCommand])

	resp = interpreter.Process("{c:a}{c:b}{c:c}{c:d}", nil)
	assert.Equal(t, "`COMMAND LIMIT REACHED (3)`", resp.Body)
	assert.Equal(t, []string{"a", "b", "c"}, resp.Actions[ActionCommand])

	assert.Equal(t, "{c:}", interpreter.Process("{c:}", nil).Body)
}

func TestEmbedBlockAttributes(t *testing.T) {
	interpreter := newTestInterpreter(t)

	resp := interpreter.Process(
		"{embed(title):Rules}"+
			"{embed(description): Be nice. }"+
			"{embed(color):#ff0000}"+
			"{embed(field):One|First rule|true}"+
			"{embed(field):Two|Second rule}"+
			"{embed(footer):Thanks|https://example.com/icon.png}"+
			"{embed(thumbnail):https://example.com/t.png}",
		nil,
	)
	assert.Equal(t, "", resp.Body)

	embed := resp.Actions[ActionEmbed].(*Embed)
	assert.Equal(t, "Rules", embed.Title)
	assert.Equal(t, "Be nice.", embed.Description)
	assert.Equal(t, 0xff0000, embed.Color)
	assert.Equal(t, []EmbedField{
		{Name: "One", Value: "First rule", Inline: true},
		{Name: "Two", Value: "Second rule"},
	}, embed.Fields)
	assert.Equal(t, &EmbedFooter{Text: "Thanks", IconURL: "https://example.com/icon.png"}, embed.Footer)
	assert.Equal(t, "https://example.com/t.png", embed.Thumbnail.URL)
}

func TestEmbedBlockRejectsBadAttributes(t *testing.T) {
	interpreter := newTestInterpreter(t)

	assert.Equal(t, "{embed(colour):notacolor}", interpreter.Process("{embed(colour):notacolor}", nil).Body)
	assert.Equal(t, "{embed(nope):x}", interpreter.Process("{embed(nope):x}", nil).Body)
	assert.Equal(t, "{embed(field):nofieldvalue}", interpreter.Process("{embed(field):nofieldvalue}", nil).Body)
}

func TestEmbedBlockJSON(t *testing.T) {
	interpreter := newTestInterpreter(t)

	resp := interpreter.Process(`{embed({"title":"T","color":255,"fields":[{"name":"a","value":"b"}]})}`, nil)
	assert.Equal(t, "", resp.Body)

	embed := resp.Actions[ActionEmbed].(*Embed)
	assert.Equal(t, "T", embed.Title)
	assert.Equal(t, 255, embed.Color)
	assert.Equal(t, []EmbedField{{Name: "a", Value: "b"}}, embed.Fields)

	resp = interpreter.Process(`{embed({"title":})}`, nil)
	assert.Contains(t, resp.Body, "Embed Parse Error")
}

func TestGateBlocks(t *testing.T) {
	interpreter := newTestInterpreter(t)

	resp := interpreter.Process("{require(Admin, Mod):You cannot use this.}{blacklist(123)}", nil)
	assert.Equal(t, "", resp.Body)
	assert.Equal(t, &Gate{Items: []string{"Admin", "Mod"}, Response: "You cannot use this."}, resp.Actions[ActionRequire])
	assert.Equal(t, &Gate{Items: []string{"123"}}, resp.Actions[ActionBlacklist])

	assert.Equal(t, "{require( , )}", interpreter.Process("{require( , )}", nil).Body)
}

func TestDeleteSilentRedirectBlocks(t *testing.T) {
	interpreter := newTestInterpreter(t)

	resp := interpreter.Process("{delete}{silent}{redirect(<#123456>)}", nil)
	assert.Equal(t, true, resp.Actions[ActionDelete])
	assert.Equal(t, true, resp.Actions[ActionSilent])
	assert.Equal(t, "123456", resp.Actions[ActionTarget])

	resp = interpreter.Process("{delete({args}==secret)}", args("public"))
	assert.NotContains(t, resp.Actions, ActionDelete)

	resp = interpreter.Process("{redirect(DM)}", nil)
	assert.Equal(t, "dm", resp.Actions[ActionTarget])

	assert.Equal(t, "{redirect(general)}", interpreter.Process("{redirect(general)}", nil).Body)
}

func TestRandomBlock(t *testing.T) {
	interpreter := newTestInterpreter(t)

	for i := 0; i < 20; i++ {
		body := interpreter.Process("{random:a,b,c}", nil).Body
		assert.Contains(t, []string{"a", "b", "c"}, body)
	}

	seeded := interpreter.Process("{random(user-1):x, y~z, w}", nil).Body
	assert.Contains(t, []string{"x, y", "z, w"}, seeded)
	for i := 0; i < 5; i++ {
		assert.Equal(t, seeded, interpreter.Process("{random(user-1):x, y~z, w}", nil).Body)
	}
}

type fakeCalculator map[string]float64

func (f fakeCalculator) Calculate(expression string) (float64, error) {
	v, ok := f[expression]
	if !ok {
		return 0, errors.New("unsupported")
	}
	return v, nil
}

func TestMathBlock(t *testing.T) {
	interpreter, err := NewInterpreter(DefaultBlocks(fakeCalculator{"1+2": 3, "10/4": 2.5}))
	require.NoError(t, err)

	assert.Equal(t, "3", interpreter.Process("{math:1+2}", nil).Body)
	assert.Equal(t, "2.5", interpreter.Process("{m:{args}}", args("10/4")).Body)
	assert.Equal(t, "{math:bad}", interpreter.Process("{math:bad}", nil).Body)
}

func TestStringAdapterSelectors(t *testing.T) {
	interpreter := newTestInterpreter(t)

	tests := []struct {
		template string
		value    string
		want     string
	}{
		{"{args}", "a b c", "a b c"},
		{"{args(2)}", "a b c", "b"},
		{"{args(2+)}", "a b c", "b c"},
		{"{args(+2)}", "a b c", "a b"},
		{"{args(5)}", "a b c", ""},
		{"{args(x)}", "a b c", "{args(x)}"},
		{"{args(2):,}", "a,b,c", "b"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, interpreter.Process(tt.template, args(tt.value)).Body, tt.template)
	}
}

func TestOtherAdapters(t *testing.T) {
	interpreter := newTestInterpreter(t)
	calls := 0

	resp := interpreter.Process("{count} {fn} {fn} {member} {member(ID)} {member(nope)}", map[string]Adapter{
		"count":  NewIntAdapter(7),
		"fn":     NewFunctionAdapter(func() string { calls++; return "f" }),
		"member": NewAttributeAdapter(map[string]string{"Name": "kim", "id": "1"}, "name"),
	})
	assert.Equal(t, "7 f f kim 1 {member(nope)}", resp.Body)
	assert.Equal(t, 2, calls)
}

func TestEvaluateCondition(t *testing.T) {
	tests := []struct {
		text  string
		want  bool
		valid bool
	}{
		{"true", true, true},
		{"FALSE", false, true},
		{"a==a", true, true},
		{" a == b ", false, true},
		{"a!=b", true, true},
		{"2>=2", true, true},
		{"10<9", false, true},
		{"b>a", true, true},
		{"==", true, true},
		{"nothing here", false, false},
	}
	for _, tt := range tests {
		got, valid := EvaluateCondition(tt.text)
		assert.Equal(t, tt.valid, valid, tt.text)
		assert.Equal(t, tt.want, got, tt.text)
	}
}

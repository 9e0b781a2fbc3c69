package botspec

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

var cantinaYAML = `
name: cantina
doc: Takes taco orders.
config:
  storage: mem
commands:
  - name: order
    description: Order a dish.
    cooldown: 5s
    options:
      - name: dish
        required: true
        choices: [tacos, chips, queso]
      - name: count
        type: number
        default: 1
    actions:
      - reply:
          content: "${args.count} ${args.dish} coming up"
events:
  - event: message_create
    when: "0 <= message.content.indexOf('taco')"
    debounce: 100ms
    actions:
      - react:
          emoji: "+1"
flows:
  greet:
    doc: Say hi.
    params:
      - name: who
        default: friend
    actions:
      - reply:
          content: "hi ${vars.who}"
variables:
  orders:
    type: number
    scope: user
    default: 0
tables:
  menu:
    columns:
      dish:
        type: string
schedules:
  - name: pulse
    cron: "0 * * * *"
    actions:
      - log:
          message: hourly
`

func TestParse(t *testing.T) {
	d, err := Parse([]byte(cantinaYAML))
	if err != nil {
		t.Fatal(err)
	}
	if d.Name != "cantina" {
		t.Fatal(d.Name)
	}
	if d.Config.Prefix != "!" || d.Config.Storage != "mem" {
		t.Fatalf("got %#v", d.Config)
	}

	c, have := d.Command("order")
	if !have {
		t.Fatal("no order command")
	}
	if c.CooldownWindow != 5*time.Second {
		t.Fatal(c.CooldownWindow)
	}
	if len(c.Actions) != 1 || c.Actions[0].Kind != "reply" {
		t.Fatalf("got %#v", c.Actions)
	}
	if len(c.Options) != 2 || c.Options[0].Type != "string" || c.Options[1].Type != "number" {
		t.Fatalf("got %#v", c.Options)
	}
	if _, have := d.Command("nachos"); have {
		t.Fatal("found a command nobody declared")
	}

	if len(d.Events) != 1 {
		t.Fatal(d.Events)
	}
	def := d.Events[0].Definition()
	if def.Event != "message_create" || def.Debounce != "100ms" {
		t.Fatalf("got %#v", def)
	}
	if len(def.Actions) != 1 || def.Actions[0].Kind != "react" {
		t.Fatalf("got %#v", def.Actions)
	}

	f, have := d.Flows["greet"]
	if !have {
		t.Fatal("no greet flow")
	}
	if len(f.Params) != 1 || f.Params[0].Name != "who" || f.Params[0].Default != "friend" {
		t.Fatalf("got %#v", f.Params)
	}
	if len(f.Actions) != 1 {
		t.Fatalf("got %#v", f.Actions)
	}

	if v, have := d.Variables["orders"]; !have || v.Type != "number" || v.Scope != "user" {
		t.Fatalf("got %#v", v)
	}
	if tab, have := d.Tables["menu"]; !have || tab.Columns["dish"].Type != "string" {
		t.Fatalf("got %#v", tab)
	}
	if len(d.Schedules) != 1 || d.Schedules[0].Actions[0].Kind != "log" {
		t.Fatalf("got %#v", d.Schedules)
	}
}

func TestParseFile(t *testing.T) {
	doc := `
commands:
  - name: ping
    actions:
      - reply:
          content: pong
`
	filename := filepath.Join(t.TempDir(), "fiesta.yaml")
	if err := os.WriteFile(filename, []byte(doc), 0644); err != nil {
		t.Fatal(err)
	}
	d, err := ParseFile(filename)
	if err != nil {
		t.Fatal(err)
	}
	if d.Name != "fiesta" {
		t.Fatal(d.Name)
	}
}

func TestCompileRejects(t *testing.T) {
	for _, tc := range []struct {
		name string
		doc  string
		want string
	}{
		{
			"no name",
			`doc: nameless`,
			"no name",
		},
		{
			"duplicate command",
			`name: x
commands:
  - name: ping
    actions: [{reply: {content: a}}]
  - name: ping
    actions: [{reply: {content: b}}]`,
			"duplicate",
		},
		{
			"command without actions",
			`name: x
commands:
  - name: ping`,
			"no actions",
		},
		{
			"bad command name",
			`name: x
commands:
  - name: "drop table"
    actions: [{reply: {content: a}}]`,
			"identifier",
		},
		{
			"two kinds in one action",
			`name: x
commands:
  - name: ping
    actions: [{reply: {content: a}, react: {emoji: b}}]`,
			"look like kinds",
		},
		{
			"bad option type",
			`name: x
commands:
  - name: ping
    options: [{name: n, type: tacos}]
    actions: [{reply: {content: a}}]`,
			"unknown type",
		},
		{
			"duplicate option",
			`name: x
commands:
  - name: ping
    options: [{name: n}, {name: n}]
    actions: [{reply: {content: a}}]`,
			"duplicate option",
		},
		{
			"bad cooldown",
			`name: x
commands:
  - name: ping
    cooldown: whenever
    actions: [{reply: {content: a}}]`,
			"duration",
		},
		{
			"event without name",
			`name: x
events:
  - actions: [{log: {message: m}}]`,
			"no event name",
		},
		{
			"bad debounce",
			`name: x
events:
  - event: e
    debounce: sometimes
    actions: [{log: {message: m}}]`,
			"duration",
		},
		{
			"bad flow name",
			`name: x
flows:
  "1flow":
    actions: [{log: {message: m}}]`,
			"identifier",
		},
		{
			"duplicate param",
			`name: x
flows:
  greet:
    params: [{name: who}, {name: who}]
    actions: [{log: {message: m}}]`,
			"duplicate param",
		},
		{
			"bad cron",
			`name: x
schedules:
  - name: pulse
    cron: whenever
    actions: [{log: {message: m}}]`,
			"",
		},
		{
			"schedule without cron",
			`name: x
schedules:
  - name: pulse
    actions: [{log: {message: m}}]`,
			"no cron",
		},
		{
			"storage needs path",
			`name: x
config: {storage: bolt}`,
			"needs a path",
		},
		{
			"unknown storage",
			`name: x
config: {storage: parchment}`,
			"unknown storage",
		},
		{
			"bad table name",
			`name: x
tables:
  "menu items":
    columns: {dish: {type: string}}`,
			"identifier",
		},
	} {
		_, err := Parse([]byte(tc.doc))
		if err == nil {
			t.Fatalf("%s: compiled anyway", tc.name)
		}
		if tc.want != "" && !strings.Contains(err.Error(), tc.want) {
			t.Fatalf("%s: got %v", tc.name, err)
		}
	}
}

func TestDecodeOptions(t *testing.T) {
	c := &Command{
		Name: "order",
		Options: []*Option{
			{Name: "dish", Type: "string", Required: true, Choices: []interface{}{"tacos", "chips"}},
			{Name: "count", Type: "number", Default: 1},
			{Name: "rush", Type: "boolean"},
		},
	}

	got, err := c.DecodeOptions(map[string]interface{}{
		"dish":  "tacos",
		"count": "2",
		"rush":  "true",
	})
	if err != nil {
		t.Fatal(err)
	}
	if got["dish"] != "tacos" || got["count"] != float64(2) || got["rush"] != true {
		t.Fatalf("got %#v", got)
	}

	// Defaults fill in as declared.
	got, err = c.DecodeOptions(map[string]interface{}{"dish": "chips"})
	if err != nil {
		t.Fatal(err)
	}
	if got["count"] != 1 {
		t.Fatalf("got %#v", got)
	}
	if _, have := got["rush"]; have {
		t.Fatal("rush appeared from nowhere")
	}

	if _, err = c.DecodeOptions(nil); err == nil {
		t.Fatal("missed the required option")
	}
	if _, err = c.DecodeOptions(map[string]interface{}{"dish": "pie"}); err == nil {
		t.Fatal("accepted a dish off the menu")
	}
	if _, err = c.DecodeOptions(map[string]interface{}{"dish": "tacos", "salsa": "hot"}); err == nil {
		t.Fatal("accepted an undeclared option")
	}
	if _, err = c.DecodeOptions(map[string]interface{}{"dish": "tacos", "count": "lots"}); err == nil {
		t.Fatal("accepted a non-number")
	}
}

func TestParseArgs(t *testing.T) {
	c := &Command{
		Name: "warn",
		Options: []*Option{
			{Name: "who", Type: "user", Required: true},
			{Name: "reason", Type: "string"},
		},
	}

	got, err := c.ParseArgs([]string{"u-bart", "being", "a", "menace"})
	if err != nil {
		t.Fatal(err)
	}
	if got["who"] != "u-bart" || got["reason"] != "being a menace" {
		t.Fatalf("got %#v", got)
	}

	got, err = c.ParseArgs([]string{"u-bart"})
	if err != nil {
		t.Fatal(err)
	}
	if _, have := got["reason"]; have {
		t.Fatalf("got %#v", got)
	}

	if _, err = c.ParseArgs(nil); err == nil {
		t.Fatal("missed the required option")
	}
}

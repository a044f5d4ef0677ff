package tool

import (
	"context"
	"time"

	"github.com/cloudwego/eino/schema"
)

type currentTimeInput struct{}

type CurrentTimeOutput struct {
	Time     string `json:"time"`
	Date     string `json:"date"`
	Weekday  string `json:"weekday"`
	Timezone string `json:"timezone"`
	Greeting string `json:"greeting"`
}

var frenchWeekdays = [...]string{"dimanche", "lundi", "mardi", "mercredi", "jeudi", "vendredi", "samedi"}

func newCurrentTimeTool(now func() time.Time, loc *time.Location) *typedTool[currentTimeInput, CurrentTimeOutput] {
	info := &schema.ToolInfo{
		Name:        ToolCurrentTime,
		Desc:        "Donne l'heure locale actuelle et indique s'il faut saluer par Bonjour ou Bonsoir.",
		ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{}),
	}
	return newTypedTool(info, func(_ context.Context, _ currentTimeInput) CurrentTimeOutput {
		t := now().In(loc)
		greeting := "Bonjour"
		if t.Hour() >= 18 || t.Hour() < 5 {
			greeting = "Bonsoir"
		}
		return CurrentTimeOutput{
			Time:     t.Format("15:04"),
			Date:     t.Format("2006-01-02"),
			Weekday:  frenchWeekdays[t.Weekday()],
			Timezone: loc.String(),
			Greeting: greeting,
		}
	})
}

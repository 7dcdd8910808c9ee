/*
Copyright 2020 Google LLC

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/
package cmd

import (
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/tunestats/tunestats/internal/cohort"
	"github.com/tunestats/tunestats/internal/funnel"
)

var emailDryRun bool

var emailCmd = &cobra.Command{
	Use:   "email <address>",
	Short: "Emails a retention and funnel summary",
	Long: `Builds the cohort retention summary and the activation funnel, renders
them as an HTML report, and emails it to the given address. With --dry_run
the report is printed instead of sent.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		err := runEmail(args[0])
		if err != nil {
			fmt.Println(err)
			os.Exit(1)
		}
	},
}

func init() {
	rootCmd.AddCommand(emailCmd)

	emailCmd.Flags().BoolVarP(&emailDryRun, "dry_run", "n", false, "When true, just print instead of emailing")
	viper.BindPFlag("dryRun", emailCmd.Flags().Lookup("dry_run"))

	emailCmd.Flags().String("from", "", "From email address")
	viper.BindPFlag("from", emailCmd.Flags().Lookup("from"))

	emailCmd.Flags().String("sendgrid-api-key", "", "SendGrid API key")
	viper.BindPFlag("sendgrid-api-key", emailCmd.Flags().Lookup("sendgrid-api-key"))
}

func runEmail(to string) error {
	ds, err := loadData()
	if err != nil {
		return err
	}

	period, err := cohort.ParsePeriod(viper.GetString("cohort-period"))
	if err != nil {
		return err
	}
	analyzer := cohort.NewAnalyzer(period)
	matrix, err := analyzer.Retention(ds.Users, ds.Sessions, 12)
	if err != nil {
		return err
	}
	summary, err := cohort.Summarize(matrix)
	if err != nil {
		return err
	}

	activation := funnel.NewAnalyzer(nil).UserActivation(ds.Users, ds.Sessions)

	subject := fmt.Sprintf("Streaming analytics report %s", time.Now().Format("2006-01-02"))
	body := buildEmailBody(summary, activation)

	if viper.GetBool("dryRun") {
		fmt.Printf("Would have sent email: \nsubject: %s\n%s\n", subject, body)
		return nil
	}

	fromAddress := viper.GetString("from")
	apiKey := viper.GetString("sendgrid-api-key")
	if fromAddress == "" || apiKey == "" {
		return fmt.Errorf("from and sendgrid-api-key must be set in order to send emails")
	}

	from := mail.NewEmail("tunestats", fromAddress)
	toEmail := mail.NewEmail(to, to)
	message := mail.NewSingleEmail(from, subject, toEmail, body, body)
	client := sendgrid.NewSendClient(apiKey)
	if _, err := client.Send(message); err != nil {
		return fmt.Errorf("sending email: %w", err)
	}
	fmt.Printf("Sent report to %s\n", to)
	return nil
}

func buildEmailBody(summary *cohort.RetentionSummary, activation *funnel.Report) string {
	var b strings.Builder
	b.WriteString(`
<html>
  <head>
<style>
td {
  padding: 0.1em 0.2em;
}
table, th, td {
  border: 1px solid black;
  border-collapse: collapse;
}
</style>
  </head>
  <body>
`)

	fmt.Fprintf(&b, "<h2>Retention</h2>\n")
	fmt.Fprintf(&b, "<div>Cohorts: %d</div>\n", summary.NumCohorts)
	fmt.Fprintf(&b, "<div>Avg period-1 retention: %.1f%%</div>\n", summary.AvgPeriod1Retention)
	fmt.Fprintf(&b, "<div>Best cohort: %s, worst cohort: %s</div>\n", summary.BestCohort, summary.WorstCohort)

	fmt.Fprintf(&b, "<h2>Activation funnel</h2>\n")
	b.WriteString("<table>\n<thead><tr><th>Stage</th><th>Users</th><th>Conversion</th><th>Drop-off</th></tr></thead>\n<tbody>\n")
	for _, s := range activation.Stages {
		fmt.Fprintf(&b, "<tr><td>%s</td><td>%d</td><td>%.1f%%</td><td>%.1f%%</td></tr>\n",
			s.Name, s.Users, s.ConversionRate*100, s.DropOffRate*100)
	}
	b.WriteString("</tbody>\n</table>\n")

	keys := make([]string, 0, len(activation.Metrics))
	for k := range activation.Metrics {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(&b, "<div>%s: %.4f</div>\n", k, activation.Metrics[k])
	}

	b.WriteString("  </body>\n</html>\n")
	return b.String()
}

package actions

import (
	"context"
	"os"
	"os/exec"
	"strings"
	"time"

	"sitemigrate/internal/config"
	"sitemigrate/internal/logging"
	"sitemigrate/internal/runlog"
	"sitemigrate/internal/services"
	"sitemigrate/internal/workflow"
)

// Command runs an external module configured under [actions.commands.<name>].
type Command struct {
	Config *config.Config
	Store  FileStore
}

// Generic marks Command as an external module: ERROR lines in its output fail
// the step.
func (c *Command) Generic() bool { return true }

// Run implements workflow.Action.
func (c *Command) Run(ctx context.Context, ac *workflow.ActionContext) error {
	name := ac.Param("command")
	command, ok := c.Config.Actions.Commands[name]
	if !ok {
		return services.Wrap(services.ErrConfiguration, "command", name, "no [actions.commands."+name+"] section", nil)
	}
	if err := os.MkdirAll(ac.WorkDir, 0o755); err != nil {
		return services.Wrap(services.ErrConfiguration, "command", name, "create work directory", err)
	}

	vars := substitutions(ac)
	args := make([]string, len(command.Args))
	for i, arg := range command.Args {
		args[i] = expand(arg, vars)
	}

	if command.TimeoutSeconds > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(command.TimeoutSeconds)*time.Second)
		defer cancel()
	}

	out := ac.Output(name)
	cmd := exec.CommandContext(ctx, args[0], args[1:]...)
	cmd.Dir = ac.WorkDir
	cmd.Stdout = out
	cmd.Stderr = out
	ac.Logger.Info("running external module",
		logging.String("command", name),
		logging.String("argv", strings.Join(args, " ")),
	)
	runErr := cmd.Run()
	if f, ok := out.(runlog.Flusher); ok {
		f.Flush()
	}
	if runErr != nil {
		return services.Wrap(services.ErrExternalTool, "command", name, "module failed", runErr)
	}

	if command.Produces == "" {
		ac.Notef("%s finished", name)
		return nil
	}
	produced := expand(command.OutputPath, vars)
	info, err := os.Stat(produced)
	if err != nil {
		return services.Wrap(services.ErrExternalTool, "command", name, "expected output "+produced+" missing", err)
	}
	link, site := ac.Record.LinkID, ac.Record.SiteID
	if err := c.Store.SetFile(ctx, link, site, command.Produces, produced); err != nil {
		return err
	}
	if command.Produces == c.Config.Upload.ArtifactKey {
		if err := c.Store.SetZipSize(ctx, link, site, info.Size()); err != nil {
			return err
		}
	}
	ac.Notef("%s produced %s (%d bytes)", name, command.Produces, info.Size())
	return nil
}

func substitutions(ac *workflow.ActionContext) map[string]string {
	vars := map[string]string{
		"link_id":  ac.Record.LinkID,
		"site_id":  ac.Record.SiteID,
		"work_dir": ac.WorkDir,
		"run_id":   ac.RunID,
	}
	for key, path := range ac.Record.Files {
		vars[key] = path
	}
	for field := range ac.Fields {
		if field == workflow.FieldFiles {
			continue
		}
		vars[field] = ac.String(field)
	}
	return vars
}

func expand(template string, vars map[string]string) string {
	pairs := make([]string, 0, len(vars)*2)
	for k, v := range vars {
		pairs = append(pairs, "{"+k+"}", v)
	}
	return strings.NewReplacer(pairs...).Replace(template)
}

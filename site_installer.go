package siteinstaller

import (
	"context"
	"fmt"
	"maps"
	"slices"
)

// InstallState is a stage of the site install. States only move forward.
type InstallState int

const (
	StateUninitialized InstallState = iota
	StateEnvironmentPrepared
	StateFoundationInstalled
	StatePlanComputed
	StateModulesInstalled
	StateFinalized
	// StateFailed is terminal; a failed installer cannot be reused.
	StateFailed
)

var stateNames = [...]string{
	StateUninitialized:       "uninitialized",
	StateEnvironmentPrepared: "environment-prepared",
	StateFoundationInstalled: "foundation-installed",
	StatePlanComputed:        "plan-computed",
	StateModulesInstalled:    "modules-installed",
	StateFinalized:           "finalized",
	StateFailed:              "failed",
}

func (s InstallState) String() string {
	if s >= 0 && int(s) < len(stateNames) {
		return stateNames[s]
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// InstallReport summarizes a finished install.
type InstallReport struct {
	Profile  string
	Plan     InstallPlan
	Outcomes map[string]InstallOutcome
	State    InstallState
}

// Installed lists the modules that went through a full install pass, in
// install order.
func (r *InstallReport) Installed() []string {
	installed := make([]string, 0, len(r.Outcomes))
	for _, name := range r.order() {
		if r.Outcomes[name] == Installed {
			installed = append(installed, name)
		}
	}
	return installed
}

func (r *InstallReport) order() []string {
	all := append([]string{SystemModule, UserModule}, r.Plan...)
	all = append(all, r.Profile)

	seen := make(map[string]bool, len(all))
	order := all[:0]
	for _, name := range all {
		if !seen[name] {
			seen[name] = true
			order = append(order, name)
		}
	}
	return order
}

// SiteInstallerOption configures a SiteInstaller.
type SiteInstallerOption func(*SiteInstaller)

// WithSubject broadcasts install events to subject.
func WithSubject(subject Subject) SiteInstallerOption {
	return func(s *SiteInstaller) { s.subject = subject }
}

// WithResolver replaces the default resolver.
func WithResolver(resolver *ModuleGraphResolver) SiteInstallerOption {
	return func(s *SiteInstaller) { s.resolver = resolver }
}

// WithOverrider replaces the default environment overrider.
func WithOverrider(overrider *EnvironmentOverrider) SiteInstallerOption {
	return func(s *SiteInstaller) { s.overrider = overrider }
}

// SiteInstaller drives a one-shot install of a profile:
//
//	Uninitialized -> EnvironmentPrepared -> FoundationInstalled ->
//	PlanComputed -> ModulesInstalled -> Finalized
//
// Any error moves it to Failed. There is no resume: re-running needs a fresh,
// uninitialized store and a new SiteInstaller.
type SiteInstaller struct {
	host      Host
	stager    *BootstrapStager
	overrider *EnvironmentOverrider
	resolver  *ModuleGraphResolver
	modules   *ModuleInstaller
	subject   Subject
	logger    Logger

	state    InstallState
	profile  Profile
	plan     InstallPlan
	outcomes map[string]InstallOutcome
}

// NewSiteInstaller creates an installer for host, bootstrapped through stager.
func NewSiteInstaller(host Host, stager *BootstrapStager, logger Logger, opts ...SiteInstallerOption) *SiteInstaller {
	if logger == nil {
		logger = NopLogger{}
	}
	s := &SiteInstaller{
		host:      host,
		stager:    stager,
		overrider: NewEnvironmentOverrider(logger),
		resolver:  NewModuleGraphResolver(logger),
		logger:    logger,
		outcomes:  make(map[string]InstallOutcome),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.modules = NewModuleInstaller(host, host, s.subject, logger)
	return s
}

// State returns the current install state.
func (s *SiteInstaller) State() InstallState {
	return s.state
}

// Plan returns the computed install plan, nil before PlanComputed.
func (s *SiteInstaller) Plan() InstallPlan {
	return slices.Clone(s.plan)
}

// Install installs profileName and everything it depends on.
func (s *SiteInstaller) Install(ctx context.Context, profileName string) (*InstallReport, error) {
	if s.state != StateUninitialized {
		return nil, fmt.Errorf("%w: installer is %s", ErrInstallerSpent, s.state)
	}

	steps := []struct {
		to  InstallState
		run func(context.Context, string) error
	}{
		{StateEnvironmentPrepared, s.prepareEnvironment},
		{StateFoundationInstalled, s.installFoundation},
		{StatePlanComputed, s.computePlan},
		{StateModulesInstalled, s.installModules},
		{StateFinalized, s.finalize},
	}
	for _, step := range steps {
		if err := step.run(ctx, profileName); err != nil {
			s.fail(ctx, profileName, step.to, err)
			return nil, err
		}
		s.transition(ctx, profileName, step.to)
	}

	return &InstallReport{
		Profile:  s.profile.Name,
		Plan:     slices.Clone(s.plan),
		Outcomes: maps.Clone(s.outcomes),
		State:    s.state,
	}, nil
}

func (s *SiteInstaller) prepareEnvironment(ctx context.Context, profileName string) error {
	s.overrider.Apply(s.host)
	if err := s.stager.EnsureLevel(ctx, LevelSettings); err != nil {
		return err
	}
	if err := s.stager.EnsureLevel(ctx, LevelDatabase); err != nil {
		return err
	}

	exists, err := s.host.TableExists(ctx, BookkeepingTable)
	if err != nil {
		return fmt.Errorf("failed to probe bookkeeping table: %w", err)
	}
	if exists {
		return ErrAlreadyInstalled
	}

	profile, err := s.host.LoadProfile(ctx, profileName)
	if err != nil {
		return err
	}
	s.profile = profile
	s.logger.Info("Found profile", "profile", profile.Name, "dependencies", profile.Dependencies)
	return nil
}

func (s *SiteInstaller) installFoundation(ctx context.Context, _ string) error {
	if err := s.host.InstallSystem(ctx); err != nil {
		return fmt.Errorf("failed to install %s module: %w", SystemModule, err)
	}
	s.outcomes[SystemModule] = Installed

	outcome, err := s.modules.Install(ctx, UserModule)
	if err != nil {
		return err
	}
	s.outcomes[UserModule] = outcome
	s.logger.Info("Base system installed")

	// The variable table only exists once system is installed.
	if err := s.host.SetVariable(ctx, "install_profile", s.profile.Name); err != nil {
		return fmt.Errorf("failed to record install profile: %w", err)
	}

	s.host.ResetStatic()
	if err := s.host.ResetModuleList(ctx); err != nil {
		return fmt.Errorf("failed to refresh module list: %w", err)
	}
	if err := s.host.RebuildCodeRegistry(ctx); err != nil {
		return fmt.Errorf("failed to rebuild code registry: %w", err)
	}
	return nil
}

func (s *SiteInstaller) computePlan(ctx context.Context, _ string) error {
	if err := s.stager.EnsureLevel(ctx, LevelFull); err != nil {
		return err
	}
	s.logger.Info("Bootstrap complete")

	catalog, err := s.host.RebuildModuleData(ctx)
	if err != nil {
		return fmt.Errorf("failed to rebuild module data: %w", err)
	}
	plan, err := s.resolver.Resolve(s.profile.Dependencies, LookupFromMap(catalog))
	if err != nil {
		return err
	}
	s.plan = plan
	return nil
}

func (s *SiteInstaller) installModules(ctx context.Context, _ string) error {
	for _, name := range s.plan {
		outcome, err := s.modules.Install(ctx, name)
		if err != nil {
			return err
		}
		s.record(name, outcome)
		s.logger.Info("Module processed", "module", name, "outcome", outcome)
	}

	// The profile behaves as a module so its own hooks run.
	outcome, err := s.modules.Install(ctx, s.profile.Name)
	if err != nil {
		return err
	}
	s.record(s.profile.Name, outcome)
	s.logger.Info("Profile fully installed", "profile", s.profile.Name)
	return nil
}

// record keeps the first Installed outcome: the plan may list a foundation
// module again, which is then skipped.
func (s *SiteInstaller) record(name string, outcome InstallOutcome) {
	if s.outcomes[name] == Installed {
		return
	}
	s.outcomes[name] = outcome
}

func (s *SiteInstaller) finalize(ctx context.Context, _ string) error {
	modules := slices.Clone(s.plan)
	if err := s.host.InvokeAll(ctx, HookModulesInstalled, modules); err != nil {
		return fmt.Errorf("%s hooks failed: %w", HookModulesInstalled, err)
	}
	s.notify(ctx, EventTypeModulesInstalled, ModulesEventData{Profile: s.profile.Name, Modules: modules})

	if err := s.host.InvokeAll(ctx, HookModulesEnabled, modules); err != nil {
		return fmt.Errorf("%s hooks failed: %w", HookModulesEnabled, err)
	}
	s.notify(ctx, EventTypeModulesEnabled, ModulesEventData{Profile: s.profile.Name, Modules: modules})

	if err := s.host.RebuildThemeRegistry(ctx); err != nil {
		return fmt.Errorf("failed to rebuild theme registry: %w", err)
	}
	return nil
}

func (s *SiteInstaller) transition(ctx context.Context, profile string, to InstallState) {
	from := s.state
	s.state = to
	s.logger.Debug("Install state changed", "from", from, "to", to)
	s.notify(ctx, EventTypeStateChanged, StateEventData{Profile: profile, From: from.String(), To: to.String()})
}

func (s *SiteInstaller) fail(ctx context.Context, profile string, target InstallState, err error) {
	from := s.state
	s.state = StateFailed
	s.logger.Error("Install failed", "state", from, "target", target, "error", err)
	s.notify(ctx, EventTypeInstallFailed, StateEventData{
		Profile: profile,
		From:    from.String(),
		To:      target.String(),
		Error:   err.Error(),
	})
}

func (s *SiteInstaller) notify(ctx context.Context, eventType string, data any) {
	if s.subject == nil {
		return
	}
	if err := s.subject.NotifyObservers(ctx, NewCloudEvent(eventType, data, nil)); err != nil {
		s.logger.Debug("Failed to emit event", "eventType", eventType, "error", err)
	}
}

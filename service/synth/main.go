// Command synth is the CDK app: it discovers the handlers, plans one function
// and API per handler and synthesizes the stack.
package main

import (
	"encoding/json"
	"fmt"
	"os"

	"hfserverless/discovery"
	"hfserverless/handler"
	_ "hfserverless/inference"
	"hfserverless/lib/logger"
	"hfserverless/lib/service"
	"hfserverless/plan"
	"hfserverless/resource"
	"hfserverless/stack"
	"hfserverless/storage"

	"github.com/alexflint/go-arg"
	"github.com/aws/aws-cdk-go/awscdk/v2"
	"github.com/aws/jsii-runtime-go"
	"github.com/samber/mo"
	"go.uber.org/zap"
)

type SynthArgs struct {
	logger.LoggerArgs
	HandlerDir        string   `arg:"--handler-dir,env:HANDLER_DIR" default:"inference"`
	StackName         string   `arg:"--stack-name,env:STACK_NAME" default:"ServerlessHuggingFaceStack"`
	Stage             string   `arg:"--stage,env:STAGE,help:prefix for resource names"`
	ImageContext      string   `arg:"--image-context,env:IMAGE_CONTEXT" default:"."`
	Dockerfile        string   `arg:"--dockerfile,env:DOCKERFILE" default:"inference/Dockerfile"`
	ImageExclude      []string `arg:"--image-exclude"`
	MemoryMB          int      `arg:"--memory-mb,env:MEMORY_MB" default:"8096"`
	TimeoutSeconds    int      `arg:"--timeout-seconds,env:TIMEOUT_SECONDS" default:"600"`
	RetainCache       bool     `arg:"--retain-cache,env:RETAIN_CACHE,help:keep the model file system when the stack is deleted"`
	ModelBucket       string   `arg:"--model-bucket,env:MODEL_STORE_S3_BUCKET"`
	SagemakerEndpoint string   `arg:"--sagemaker-endpoint,env:SAGEMAKER_ENDPOINT"`
	HandlerLogLevel   string   `arg:"--handler-log-level,env:HANDLER_LOG_LEVEL" default:"info"`
	DryRun            bool     `arg:"--dry-run,help:print the deployment plan as JSON and exit"`
}

var defaultImageExclude = []string{".git", "cdk.out", "_examples"}

func optional(v string) mo.Option[string] {
	if v == "" {
		return mo.None[string]()
	}
	return mo.Some(v)
}

// deployment plans one function per discovered handler. Every discovered file
// must name a handler registered in the binary the image is built from.
func deployment(flags SynthArgs, registered []service.Name, log *zap.Logger) (plan.Deployment, error) {
	handlers, err := discovery.Scan(flags.HandlerDir, discovery.DefaultConvention)
	if err != nil {
		return plan.Deployment{}, fmt.Errorf("failed to discover handlers: %w", err)
	}
	for _, h := range handlers {
		log.Info("discovered handler", zap.String("name", h.Name.Value()), zap.String("path", h.RelPath))
	}
	undiscovered, err := discovery.Match(handlers, registered)
	if err != nil {
		return plan.Deployment{}, err
	}
	for _, name := range undiscovered {
		log.Warn("registered handler has no file, not deploying it", zap.String("name", name.Value()))
	}
	if len(handlers) == 0 {
		log.Warn("no handlers found, the stack only holds the shared cache", zap.String("dir", flags.HandlerDir))
	}

	cache := storage.Default()
	cache.Destroy = !flags.RetainCache

	d := plan.DefaultDefaults()
	d.MemoryMB = flags.MemoryMB
	d.TimeoutSeconds = flags.TimeoutSeconds
	d.Scope = resource.NewStageScope(flags.Stage)
	d.Environment["LOG_LEVEL"] = flags.HandlerLogLevel
	if flags.ModelBucket != "" {
		d.Environment["MODEL_STORE_S3_BUCKET"] = flags.ModelBucket
	}
	if flags.SagemakerEndpoint != "" {
		d.Environment["SAGEMAKER_ENDPOINT"] = flags.SagemakerEndpoint
	}
	return plan.Build(flags.StackName, discovery.Names(handlers), cache, d)
}

func main() {
	var flags SynthArgs
	arg.MustParse(&flags)
	log, err := logger.New(flags.LoggerArgs)
	if err != nil {
		panic(fmt.Sprintf("failed to create logger: %v", err))
	}
	defer log.Sync()

	dep, err := deployment(flags, handler.Names(), log)
	if err != nil {
		log.Fatal("failed to plan deployment", zap.Error(err))
	}
	if flags.DryRun {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(dep); err != nil {
			log.Fatal("failed to print plan", zap.Error(err))
		}
		return
	}

	defer jsii.Close()
	app := awscdk.NewApp(nil)
	exclude := flags.ImageExclude
	if len(exclude) == 0 {
		exclude = defaultImageExclude
	}
	stack.NewInferenceStack(app, flags.StackName, &stack.InferenceStackProps{
		StackProps: awscdk.StackProps{
			Env: env(),
		},
		Deployment: dep,
		Image: stack.ImageProps{
			Context:    flags.ImageContext,
			Dockerfile: flags.Dockerfile,
			Exclude:    exclude,
		},
		ModelBucket:       optional(flags.ModelBucket),
		SagemakerEndpoint: optional(flags.SagemakerEndpoint),
	})
	log.Info("synthesizing stack", zap.String("stack", flags.StackName), zap.Int("services", len(dep.Functions)))
	app.Synth(nil)
}

// env resolves the target account and region from the CDK cli when present.
func env() *awscdk.Environment {
	account, region := os.Getenv("CDK_DEFAULT_ACCOUNT"), os.Getenv("CDK_DEFAULT_REGION")
	if account == "" && region == "" {
		return nil
	}
	return &awscdk.Environment{
		Account: jsii.String(account),
		Region:  jsii.String(region),
	}
}

// Package stack declares the inference deployment with the AWS CDK: one VPC,
// one shared file system for model artifacts, and a function plus REST API
// for every planned service.
package stack

import (
	"fmt"

	"hfserverless/lib/service"
	"hfserverless/plan"
	"hfserverless/resource"
	"hfserverless/storage"

	"github.com/aws/aws-cdk-go/awscdk/v2"
	"github.com/aws/aws-cdk-go/awscdk/v2/awsapigateway"
	"github.com/aws/aws-cdk-go/awscdk/v2/awsec2"
	"github.com/aws/aws-cdk-go/awscdk/v2/awsefs"
	"github.com/aws/aws-cdk-go/awscdk/v2/awsiam"
	"github.com/aws/aws-cdk-go/awscdk/v2/awslambda"
	"github.com/aws/aws-cdk-go/awscdk/v2/awss3"
	"github.com/aws/constructs-go/constructs/v10"
	"github.com/aws/jsii-runtime-go"
	"github.com/samber/mo"
)

const defaultMaxAzs = 2

// ImageProps locates the container image every function is built from.
type ImageProps struct {
	// Context is the docker build context directory.
	Context string
	// Dockerfile is relative to Context.
	Dockerfile string
	Exclude    []string
}

type InferenceStackProps struct {
	awscdk.StackProps
	Deployment plan.Deployment
	Image      ImageProps
	MaxAzs     int
	// ModelBucket, when set, is the hub bucket functions may read artifacts from.
	ModelBucket       mo.Option[string]
	SagemakerEndpoint mo.Option[string]
}

// Service groups the constructs provisioned for one service name.
type Service struct {
	Function    awslambda.DockerImageFunction
	API         awsapigateway.RestApi
	Resource    awsapigateway.Resource
	Integration awsapigateway.LambdaIntegration
}

type InferenceStack struct {
	awscdk.Stack
	Vpc         awsec2.Vpc
	FileSystem  awsefs.FileSystem
	AccessPoint awsefs.AccessPoint

	services map[service.Name]Service
	order    []service.Name
}

func NewInferenceStack(scope constructs.Construct, id string, props *InferenceStackProps) *InferenceStack {
	var sprops awscdk.StackProps
	if props != nil {
		sprops = props.StackProps
	} else {
		props = &InferenceStackProps{}
	}
	s := &InferenceStack{
		Stack:    awscdk.NewStack(scope, &id, &sprops),
		services: make(map[service.Name]Service, len(props.Deployment.Functions)),
	}

	maxAzs := props.MaxAzs
	if maxAzs == 0 {
		maxAzs = defaultMaxAzs
	}
	// The file system needs to live in a VPC.
	s.Vpc = awsec2.NewVpc(s.Stack, jsii.String("Vpc"), &awsec2.VpcProps{
		MaxAzs: jsii.Number(float64(maxAzs)),
	})
	s.FileSystem, s.AccessPoint = newSharedCache(s.Stack, s.Vpc, props.Deployment.Cache)
	mount := awslambda.FileSystem_FromEfsAccessPoint(s.AccessPoint, jsii.String(props.Deployment.Cache.MountPath))

	var bucket awss3.IBucket
	if name, ok := props.ModelBucket.Get(); ok && name != "" {
		bucket = awss3.Bucket_FromBucketName(s.Stack, jsii.String("ModelBucket"), jsii.String(name))
	}

	for _, fspec := range props.Deployment.Functions {
		route, ok := props.Deployment.Route(fspec.Name)
		if !ok {
			panic(fmt.Sprintf("service %q has a function but no route", fspec.Name))
		}
		fn := newFunction(s.Stack, s.Vpc, mount, props.Image, fspec)
		if bucket != nil {
			bucket.GrantRead(fn, nil)
		}
		if endpoint, ok := props.SagemakerEndpoint.Get(); ok && endpoint != "" {
			fn.AddToRolePolicy(awsiam.NewPolicyStatement(&awsiam.PolicyStatementProps{
				Actions: jsii.Strings("sagemaker:InvokeEndpoint"),
				Resources: jsii.Strings(*s.Stack.FormatArn(&awscdk.ArnComponents{
					Service:      jsii.String("sagemaker"),
					Resource:     jsii.String("endpoint"),
					ResourceName: jsii.String(endpoint),
				})),
			}))
		}
		svc := newAPI(s.Stack, fn, route)
		svc.Function = fn

		awscdk.NewCfnOutput(s.Stack, jsii.String(resource.OutputID(fspec.Name)), &awscdk.CfnOutputProps{
			Value:       svc.API.UrlForPath(jsii.String("/" + route.PathPart)),
			Description: jsii.String(fmt.Sprintf("Endpoint of the %s service", fspec.Name)),
		})
		awscdk.NewCfnOutput(s.Stack, jsii.String(resource.FunctionOutputID(fspec.Name)), &awscdk.CfnOutputProps{
			Value:       fn.FunctionName(),
			Description: jsii.String(fmt.Sprintf("Function backing the %s service", fspec.Name)),
		})

		s.services[fspec.Name] = svc
		s.order = append(s.order, fspec.Name)
	}
	return s
}

func newSharedCache(scope constructs.Construct, vpc awsec2.IVpc, cache storage.SharedCache) (awsefs.FileSystem, awsefs.AccessPoint) {
	removal := awscdk.RemovalPolicy_RETAIN
	if cache.Destroy {
		removal = awscdk.RemovalPolicy_DESTROY
	}
	fs := awsefs.NewFileSystem(scope, jsii.String("FileSystem"), &awsefs.FileSystemProps{
		Vpc:           vpc,
		RemovalPolicy: removal,
	})
	ap := fs.AddAccessPoint(jsii.String("MLAccessPoint"), &awsefs.AccessPointOptions{
		CreateAcl: &awsefs.Acl{
			OwnerUid:    jsii.String(cache.OwnerUID),
			OwnerGid:    jsii.String(cache.OwnerGID),
			Permissions: jsii.String(cache.Permissions),
		},
		Path: jsii.String(cache.ExportPath),
		PosixUser: &awsefs.PosixUser{
			Uid: jsii.String(cache.OwnerUID),
			Gid: jsii.String(cache.OwnerGID),
		},
	})
	return fs, ap
}

func newFunction(scope constructs.Construct, vpc awsec2.IVpc, mount awslambda.FileSystem, image ImageProps, spec plan.FunctionSpec) awslambda.DockerImageFunction {
	env := make(map[string]*string, len(spec.Environment))
	for k, v := range spec.Environment {
		env[k] = jsii.String(v)
	}
	codeProps := &awslambda.AssetImageCodeProps{
		Cmd: jsii.Strings(spec.Command...),
	}
	if image.Dockerfile != "" {
		codeProps.File = jsii.String(image.Dockerfile)
	}
	if len(image.Exclude) > 0 {
		codeProps.Exclude = jsii.Strings(image.Exclude...)
	}
	return awslambda.NewDockerImageFunction(scope, jsii.String(spec.ConstructID), &awslambda.DockerImageFunctionProps{
		Code:        awslambda.DockerImageCode_FromImageAsset(jsii.String(image.Context), codeProps),
		MemorySize:  jsii.Number(float64(spec.MemoryMB)),
		Timeout:     awscdk.Duration_Seconds(jsii.Number(float64(spec.TimeoutSeconds))),
		Vpc:         vpc,
		Filesystem:  mount,
		Environment: &env,
	})
}

func corsOptions(p plan.CORSPolicy) *awsapigateway.CorsOptions {
	opts := &awsapigateway.CorsOptions{
		AllowOrigins: jsii.Strings(p.AllowOrigins...),
		AllowMethods: jsii.Strings(p.AllowMethods...),
	}
	if p.AllowsAllOrigins() {
		opts.AllowOrigins = awsapigateway.Cors_ALL_ORIGINS()
	}
	if p.AllowsAllMethods() {
		opts.AllowMethods = awsapigateway.Cors_ALL_METHODS()
	}
	return opts
}

func newAPI(scope constructs.Construct, fn awslambda.IFunction, route plan.RouteSpec) Service {
	api := awsapigateway.NewRestApi(scope, jsii.String(route.ConstructID), &awsapigateway.RestApiProps{
		RestApiName:                 jsii.String(route.RestAPIName),
		Description:                 jsii.String(route.Description),
		DefaultCorsPreflightOptions: corsOptions(route.CORS),
	})
	integration := awsapigateway.NewLambdaIntegration(fn, &awsapigateway.LambdaIntegrationOptions{})

	api.Root().AddMethod(jsii.String(route.RootMethod), nil, nil)
	res := api.Root().AddResource(jsii.String(route.PathPart), nil)
	for _, method := range route.Methods {
		res.AddMethod(jsii.String(method), integration, nil)
	}
	return Service{
		API:         api,
		Resource:    res,
		Integration: integration,
	}
}

func (s *InferenceStack) Service(name service.Name) (Service, bool) {
	svc, ok := s.services[name]
	return svc, ok
}

// Names returns the provisioned services in plan order.
func (s *InferenceStack) Names() []service.Name {
	ret := make([]service.Name, len(s.order))
	copy(ret, s.order)
	return ret
}
